package memstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allisontodd/shout/internal/store"
)

func TestPutBaselineThenActiveMerge(t *testing.T) {
	s := New()
	key := store.PathKey{RunTS: 100, TX: "radioA", RX: "radioB", StartTS: 105}

	require.NoError(t, s.PutBaseline(key, []float64{1, 2, 3}))
	require.NoError(t, s.PutActive(key, []float64{4, 5, 6}))

	got, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float64{1, 2, 3}, got.Baseline)
	require.Equal(t, []float64{4, 5, 6}, got.Active)
}

func TestGetMissingKey(t *testing.T) {
	s := New()
	_, ok, err := s.Get(store.PathKey{RunTS: 1, TX: "a", RX: "b", StartTS: 1})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListRunReturnsAllKeysForThatRunOnly(t *testing.T) {
	s := New()
	k1 := store.PathKey{RunTS: 100, TX: "radioA", RX: "radioB", StartTS: 105}
	k2 := store.PathKey{RunTS: 100, TX: "radioB", RX: "radioA", StartTS: 106}
	k3 := store.PathKey{RunTS: 200, TX: "radioA", RX: "radioB", StartTS: 205}

	require.NoError(t, s.PutBaseline(k1, []float64{1}))
	require.NoError(t, s.PutBaseline(k2, []float64{2}))
	require.NoError(t, s.PutBaseline(k3, []float64{3}))

	keys, err := s.ListRun(100)
	require.NoError(t, err)
	require.ElementsMatch(t, []store.PathKey{k1, k2}, keys)

	keys, err = s.ListRun(200)
	require.NoError(t, err)
	require.ElementsMatch(t, []store.PathKey{k3}, keys)
}
