// Package metrics defines the orchestrator's Prometheus instrumentation
// (SPEC_FULL.md §3.2), grounded on the client_golang usage in
// dantte-lp-gobfd/internal/metrics and nabbar-golib.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Orchestrator bundles the orchestrator's metric collectors. Register it
// with a prometheus.Registerer once at startup.
type Orchestrator struct {
	RegisteredPeers *prometheus.GaugeVec
	CallsRouted     *prometheus.CounterVec
	ResultsRouted   *prometheus.CounterVec
	CallMapSize     prometheus.GaugeFunc
}

// NewOrchestrator constructs the collectors. callMapLen is polled lazily by
// the CallMapSize gauge.
func NewOrchestrator(callMapLen func() float64) *Orchestrator {
	return &Orchestrator{
		RegisteredPeers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shout",
			Subsystem: "orchestrator",
			Name:      "registered_peers",
			Help:      "Number of currently registered peers, by peer type.",
		}, []string{"peer_type"}),
		CallsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shout",
			Subsystem: "orchestrator",
			Name:      "calls_routed_total",
			Help:      "CALL messages processed, by outcome.",
		}, []string{"outcome"}),
		ResultsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shout",
			Subsystem: "orchestrator",
			Name:      "results_routed_total",
			Help:      "RESULT messages processed, by outcome.",
		}, []string{"outcome"}),
		CallMapSize: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "shout",
			Subsystem: "orchestrator",
			Name:      "callmap_entries",
			Help:      "Outstanding uuid->sid entries in the call map.",
		}, callMapLen),
	}
}

// MustRegister registers all collectors with reg.
func (o *Orchestrator) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(o.RegisteredPeers, o.CallsRouted, o.ResultsRouted, o.CallMapSize)
}

// Outcome labels for CallsRouted / ResultsRouted.
const (
	OutcomeBuiltin      = "builtin"
	OutcomeFannedOut    = "fanned_out"
	OutcomeRoutingMiss  = "routing_miss"
	OutcomeDroppedNoCli = "dropped_no_clients"
	OutcomeDelivered    = "delivered"
	OutcomeDroppedNoUUID = "dropped_unknown_uuid"
	OutcomeDroppedGone  = "dropped_originator_gone"
)
