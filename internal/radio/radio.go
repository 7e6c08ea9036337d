// Package radio defines the capability a measurement client exercises
// against its attached SDR hardware (spec.md §6.5 names this out of scope
// for wire behavior; this package only fixes the interface a measurement
// client's RPC handlers call through, grounded on original_source/radio.py's
// UHD-backed Radio class).
package radio

import "github.com/allisontodd/shout/internal/wire"

// Driver is the capability a measurement client needs from its radio:
// retune, receive a burst of IQ samples, and transmit a burst of IQ
// samples. A real implementation would wrap a UHD/SoapySDR binding; this
// module only needs the interface and a deterministic fake for tests.
type Driver interface {
	// Tune retunes both RX and TX chains to freq, setting gain and
	// sample rate.
	Tune(freq, gain, rate float64) error

	// RecvSamples blocks until n samples have been collected.
	RecvSamples(n int) ([]wire.Sample, error)

	// SendSamples transmits samples once. Callers loop it to sustain a
	// continuous carrier (original_source meascli.py's _do_xmit).
	SendSamples(samples []wire.Sample) error
}
