package radio

import (
	"math"
	"sync"

	"github.com/allisontodd/shout/internal/wire"
)

// FakeDriver is a deterministic, hardware-free Driver used by tests and by
// local development deployments where no SDR is attached. It synthesizes a
// sine wave at its WFreq so RecvSamples produces something a PSD
// or power measurement can meaningfully operate on.
type FakeDriver struct {
	mu   sync.Mutex
	freq float64
	gain float64
	rate float64

	// WFreq is the tone frequency FakeDriver will synthesize on
	// RecvSamples, relative to the tuned center frequency. Tests set it
	// directly; a real driver has no equivalent, since it is observing
	// the RF environment rather than synthesizing it.
	WFreq float64

	Sent [][]wire.Sample
}

// NewFakeDriver returns a FakeDriver producing a 10kHz tone by default.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{WFreq: 1e4}
}

func (f *FakeDriver) Tune(freq, gain, rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freq, f.gain, f.rate = freq, gain, rate
	return nil
}

func (f *FakeDriver) RecvSamples(n int) ([]wire.Sample, error) {
	f.mu.Lock()
	rate := f.rate
	if rate == 0 {
		rate = 1e6
	}
	wfreq := f.WFreq
	f.mu.Unlock()

	out := make([]wire.Sample, n)
	for i := range out {
		theta := 2 * math.Pi * wfreq * float64(i) / rate
		out[i] = wire.Sample{R: math.Cos(theta), J: math.Sin(theta)}
	}
	return out, nil
}

func (f *FakeDriver) SendSamples(samples []wire.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]wire.Sample(nil), samples...)
	f.Sent = append(f.Sent, cp)
	return nil
}
