// Package memstore implements in-memory storage for measure_paths runs,
// grounded on R2Northstar-Atlas/pkg/memstore's sync.Map-backed store
// pattern.
package memstore

import (
	"sync"

	"github.com/allisontodd/shout/internal/store"
)

// Store is a sync.Map-backed store.Store. It never persists to disk; it
// exists for tests and for development deployments that do not need
// measurements to survive a restart.
type Store struct {
	samples sync.Map // store.PathKey -> store.PathSample
	runs    sync.Map // int64 -> *sync.Map (store.PathKey -> struct{})
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{}
}

func (s *Store) runIndex(runTS int64) *sync.Map {
	v, _ := s.runs.LoadOrStore(runTS, &sync.Map{})
	return v.(*sync.Map)
}

func (s *Store) PutBaseline(key store.PathKey, measurements []float64) error {
	return s.update(key, func(sample *store.PathSample) {
		sample.Baseline = append([]float64(nil), measurements...)
	})
}

func (s *Store) PutActive(key store.PathKey, measurements []float64) error {
	return s.update(key, func(sample *store.PathSample) {
		sample.Active = append([]float64(nil), measurements...)
	})
}

func (s *Store) update(key store.PathKey, mutate func(*store.PathSample)) error {
	v, _ := s.samples.LoadOrStore(key, &store.PathSample{})
	sample := v.(*store.PathSample)
	mutate(sample)
	s.samples.Store(key, sample)
	s.runIndex(key.RunTS).Store(key, struct{}{})
	return nil
}

func (s *Store) Get(key store.PathKey) (store.PathSample, bool, error) {
	v, ok := s.samples.Load(key)
	if !ok {
		return store.PathSample{}, false, nil
	}
	return *v.(*store.PathSample), true, nil
}

func (s *Store) ListRun(runTS int64) ([]store.PathKey, error) {
	idx, ok := s.runs.Load(runTS)
	if !ok {
		return nil, nil
	}
	var keys []store.PathKey
	idx.(*sync.Map).Range(func(k, _ any) bool {
		keys = append(keys, k.(store.PathKey))
		return true
	})
	return keys, nil
}
