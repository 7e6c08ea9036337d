// Package store defines the persistence contract for measure_paths runs:
// each run groups per-(tx,rx) datasets of a baseline and an active power
// sample, keyed the way original_source meascon.py organizes its HDF5 file
// (measure_paths/<run_ts>/<rx>-<tx_start_time> datasets, baseline in row 0,
// active-pass in row 1). Grounded structurally on
// R2Northstar-Atlas/pkg/memstore's sync.Map-backed store pattern.
package store

import "fmt"

// PathKey identifies one measured (tx, rx) pair within a run.
type PathKey struct {
	RunTS  int64
	TX     string
	RX     string
	StartTS int64
}

func (k PathKey) datasetName() string {
	return fmt.Sprintf("measure_paths/%d/%s-%d", k.RunTS, k.RX, k.StartTS)
}

// PathSample is one row of measurements recorded against a PathKey: the
// no-transmit baseline pass and the active pass, index 0 and 1
// respectively, matching meascon.py's ds[0]/ds[1] rows.
type PathSample struct {
	Baseline []float64
	Active   []float64
}

// Store is the persistence capability a measure_paths run needs. It is
// intentionally narrow: callers needing richer querying build it on top
// (spec.md §6.4 leaves on-disk format unspecified beyond "retrievable by
// (run, tx, rx)").
type Store interface {
	// PutBaseline records the no-transmit baseline pass for key.
	PutBaseline(key PathKey, measurements []float64) error

	// PutActive records the active (transmitting) pass for key.
	PutActive(key PathKey, measurements []float64) error

	// Get returns the recorded sample for key, if any.
	Get(key PathKey) (PathSample, bool, error)

	// ListRun returns every key recorded under runTS.
	ListRun(runTS int64) ([]PathKey, error)
}
