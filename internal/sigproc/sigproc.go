// Package sigproc holds the signal-processing helpers an interface driver
// runs over returned sample blocks: average power and power spectral
// density (grounded on original_source/sigutils.py and meascon.py's
// compute_psd/get_avg_power, supplementing the distilled spec per
// SPEC_FULL.md §4).
package sigproc

import (
	"math"

	"github.com/allisontodd/shout/internal/wire"
)

// AvgPowerDB returns the mean power of samples in decibels, matching
// sigutils.get_avg_power's normalization.
func AvgPowerDB(samples []wire.Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.R*s.R + s.J*s.J
	}
	return 10.0 * math.Log10(sum/float64(len(samples)))
}

// PSDFunc computes the power spectral density of samples, returning one
// decibel-magnitude bin per input sample (sigutils.compute_psd). It is
// expressed as a function type, not a concrete implementation, so that
// plot_psd's actual windowing/transform choice is a pluggable collaborator
// rather than something baked into the sequencer (SPEC_FULL.md §4).
type PSDFunc func(samples []wire.Sample) []float64

// HammingPSD is the reference PSDFunc: a Hamming-windowed DFT magnitude
// (decibel) spectrum, fftshifted so bin 0 is the center frequency. It uses
// a direct O(n^2) DFT, which is adequate for the sample block sizes this
// protocol moves (low thousands) and avoids pulling in an external FFT
// library for a function invoked only when an operator asks to plot.
func HammingPSD(samples []wire.Sample) []float64 {
	n := len(samples)
	if n == 0 {
		return nil
	}
	windowed := make([]complex128, n)
	for i, s := range samples {
		w := hamming(i, n)
		windowed[i] = complex(s.R*w, s.J*w)
	}

	out := make([]float64, n)
	for k := 0; k < n; k++ {
		var re, im float64
		for t := 0; t < n; t++ {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			c, sn := math.Cos(angle), math.Sin(angle)
			re += real(windowed[t])*c - imag(windowed[t])*sn
			im += real(windowed[t])*sn + imag(windowed[t])*c
		}
		mag := re*re + im*im
		if mag == 0 {
			out[k] = 0
		} else {
			out[k] = 10.0 * math.Log10(mag)
		}
	}
	return fftshift(out)
}

func hamming(i, n int) float64 {
	if n == 1 {
		return 1
	}
	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
}

func fftshift(bins []float64) []float64 {
	n := len(bins)
	mid := n / 2
	out := make([]float64, n)
	copy(out, bins[mid:])
	copy(out[n-mid:], bins[:mid])
	return out
}
