package orchestrator

import (
	"sync"
	"time"
)

type callEntry struct {
	sid     int32
	touched time.Time
}

// CallMap is the orchestrator's uuid -> originating-interface-client-sid
// table (spec.md §3, CallMap). A CALL fanned out to several targets
// produces one RESULT per target under the same uuid, so entries are kept
// after delivery and dropped by the TTL sweep (SPEC_FULL.md §6.1) once no
// RESULT has touched them for the configured TTL.
type CallMap struct {
	mu      sync.Mutex
	entries map[int32]callEntry
}

// NewCallMap returns an empty call map.
func NewCallMap() *CallMap {
	return &CallMap{entries: make(map[int32]callEntry)}
}

// Insert records that uuid was placed by the interface client with the
// given sid.
func (c *CallMap) Insert(uuid, sid int32, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[uuid] = callEntry{sid: sid, touched: now}
}

// Take returns the originating sid for uuid and refreshes the entry's
// last-touch time, so further RESULTs for the same call still resolve; the
// entry stays until Sweep drops it. ok is false if no such call is
// outstanding.
func (c *CallMap) Take(uuid int32) (sid int32, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, exists := c.entries[uuid]
	if !exists {
		return 0, false
	}
	e.touched = time.Now()
	c.entries[uuid] = e
	return e.sid, true
}

// Sweep removes entries older than ttl, returning how many were dropped.
func (c *CallMap) Sweep(ttl time.Duration, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for uuid, e := range c.entries {
		if now.Sub(e.touched) > ttl {
			delete(c.entries, uuid)
			n++
		}
	}
	return n
}

// Len reports the number of outstanding calls.
func (c *CallMap) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
