package config

import (
	"github.com/rs/zerolog"
)

// IfaceConfig holds an interface driver daemon's configuration.
type IfaceConfig struct {
	OrchestratorHost string `env:"SHOUT_ORCH_HOST=127.0.0.1"`
	OrchestratorPort int    `env:"SHOUT_ORCH_PORT=5555"`

	ClientName string `env:"SHOUT_CLIENT_NAME"`

	// Interface connectors fail fast rather than retry (spec.md §4.3).
	MaxConnTries int `env:"SHOUT_MAX_CONN_TRIES=1"`

	// Data directory setting (spec.md §6.4). cmd/ifaced does not read it:
	// measurements are kept in an in-memory store and are not written to
	// disk.
	DataDir string `env:"SHOUT_DATA_DIR=./shoutdata"`

	LogLevel  zerolog.Level `env:"SHOUT_LOG_LEVEL=info"`
	LogPretty bool          `env:"SHOUT_LOG_PRETTY=true"`
}
