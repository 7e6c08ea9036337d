package config

import (
	"net"
	"time"

	"github.com/rs/zerolog"
)

// OrchestratorConfig holds the orchestrator daemon's env-tag configuration
// (spec.md §6.1).
type OrchestratorConfig struct {
	// Address to listen on for peer connections.
	Addr string `env:"SHOUT_ORCH_ADDR=0.0.0.0:5555"`

	// Accept backlog setting. cmd/orchestratord does not apply it; the
	// listener uses net.Listen's system default backlog.
	Backlog int `env:"SHOUT_ORCH_BACKLOG=10"`

	// Allowed source-IP CIDR ranges for admission (spec.md §4.2). Defaults
	// to loopback plus the subnet used in the original prototype's lab
	// deployment.
	AllowedCIDRs []*net.IPNet `env:"SHOUT_ORCH_ALLOWED_CIDRS=127.0.0.0/8,155.98.32.0/20"`

	LogLevel  zerolog.Level `env:"SHOUT_LOG_LEVEL=info"`
	LogPretty bool          `env:"SHOUT_LOG_PRETTY=true"`

	// HTTP address to expose Prometheus metrics on; empty disables it.
	MetricsAddr string `env:"SHOUT_METRICS_ADDR"`

	// How long a CALL's uuid->sid entry may sit in the call map without a
	// RESULT touching it before it is dropped. Entries are kept after
	// delivery, since a fanned-out CALL yields one RESULT per target, so
	// this sweep is what removes them (SPEC_FULL.md §6.1). Zero disables
	// the sweep.
	CallMapTTL time.Duration `env:"SHOUT_ORCH_CALLMAP_TTL=5m"`
}
