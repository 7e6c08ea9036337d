package sigproc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allisontodd/shout/internal/wire"
)

func toneSamples(n int, wfreq, rate float64) []wire.Sample {
	out := make([]wire.Sample, n)
	for i := range out {
		theta := 2 * math.Pi * wfreq * float64(i) / rate
		out[i] = wire.Sample{R: math.Cos(theta), J: math.Sin(theta)}
	}
	return out
}

func TestAvgPowerDBOfUnitToneIsZero(t *testing.T) {
	samples := toneSamples(1024, 1e4, 1e6)
	require.InDelta(t, 0.0, AvgPowerDB(samples), 1e-9)
}

func TestAvgPowerDBOfEmptyIsZero(t *testing.T) {
	require.Equal(t, 0.0, AvgPowerDB(nil))
}

func TestHammingPSDPeaksNearToneFrequency(t *testing.T) {
	const n = 256
	const rate = 1e6
	const wfreq = 1e5 // wfreq/rate*n = 25.6 bins above center

	samples := toneSamples(n, wfreq, rate)
	psd := HammingPSD(samples)
	require.Len(t, psd, n)

	peak := 0
	for i := 1; i < n; i++ {
		if psd[i] > psd[peak] {
			peak = i
		}
	}

	expected := n/2 + int(math.Round(wfreq/rate*n))
	require.InDelta(t, expected, peak, 2)
}
