package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/allisontodd/shout/internal/wire"
)

// PeerEntry is the orchestrator's record of one live, fully-admitted
// connection (spec.md §3, PeerRegistryEntry).
type PeerEntry struct {
	Host string
	Port int
	Sid  int32
	Name string
	Type wire.PeerType

	Endpoint wire.Endpoint

	mu   sync.Mutex
	last time.Time
}

// Touch updates the entry's last-activity timestamp (used by HB).
func (p *PeerEntry) Touch(now time.Time) {
	p.mu.Lock()
	p.last = now
	p.mu.Unlock()
}

// LastActivity returns the last-touched timestamp.
func (p *PeerEntry) LastActivity() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func peerKey(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// Registry is the orchestrator's peer table: (endpoint) -> entry is a
// one-to-one mapping, sids are unique among live entries, and an entry
// exists iff the connection is open and fully admitted (spec.md §3
// invariants). All methods are safe for concurrent use: the orchestrator's
// per-connection goroutines mutate it, and metrics collection may inspect
// it concurrently.
type Registry struct {
	mu      sync.RWMutex
	byKey   map[string]*PeerEntry
	// order preserves registration order so that "all" fan-out and
	// getclients report measurement clients in the order they joined
	// (spec.md seed scenario 1).
	order []string
}

// NewRegistry returns an empty peer registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*PeerEntry)}
}

// Lookup returns the entry for (host, port), if any.
func (r *Registry) Lookup(host string, port int) (*PeerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[peerKey(host, port)]
	return e, ok
}

// LookupSid returns the entry with the given session id, if any.
func (r *Registry) LookupSid(sid int32) (*PeerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.order {
		if e := r.byKey[k]; e != nil && e.Sid == sid {
			return e, true
		}
	}
	return nil, false
}

// LookupName returns the entry with the given client name, if any.
func (r *Registry) LookupName(name string) (*PeerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.order {
		if e := r.byKey[k]; e != nil && e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// SidInUse reports whether sid currently belongs to a live entry other than
// the one at (host, port). Used to resolve spec.md §9's reconnect-collision
// open question.
func (r *Registry) SidInUse(sid int32, host string, port int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := peerKey(host, port)
	for _, k := range r.order {
		if e := r.byKey[k]; e != nil && e.Sid == sid && k != key {
			return true
		}
	}
	return false
}

// Register inserts or replaces the entry for (host, port).
func (r *Registry) Register(e *PeerEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := peerKey(e.Host, e.Port)
	if _, exists := r.byKey[key]; !exists {
		r.order = append(r.order, key)
	}
	r.byKey[key] = e
}

// Unregister removes the entry for (host, port), if present.
func (r *Registry) Unregister(host string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := peerKey(host, port)
	if _, ok := r.byKey[key]; !ok {
		return
	}
	delete(r.byKey, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// MeasurementClientNames returns the names of all currently registered
// measurement clients, in registration order (spec.md P3).
func (r *Registry) MeasurementClientNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, k := range r.order {
		if e := r.byKey[k]; e != nil && e.Type == wire.PeerMeasClient {
			names = append(names, e.Name)
		}
	}
	return names
}

// MeasurementClients returns the entries for all currently registered
// measurement clients, in registration order. The caller must not mutate
// the returned slice's entries concurrently with registry changes; it is a
// point-in-time snapshot, satisfying P3's "at the moment of dispatch".
func (r *Registry) MeasurementClients() []*PeerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*PeerEntry
	for _, k := range r.order {
		if e := r.byKey[k]; e != nil && e.Type == wire.PeerMeasClient {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of live entries, by peer type.
func (r *Registry) Count(t wire.PeerType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, k := range r.order {
		if e := r.byKey[k]; e != nil && e.Type == t {
			n++
		}
	}
	return n
}
