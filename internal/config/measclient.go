package config

import (
	"time"

	"github.com/rs/zerolog"
)

// MeasClientConfig holds a measurement client daemon's configuration.
type MeasClientConfig struct {
	// Orchestrator host to connect to.
	OrchestratorHost string `env:"SHOUT_ORCH_HOST=127.0.0.1"`
	OrchestratorPort int    `env:"SHOUT_ORCH_PORT=5555"`

	// Name this client reports to the orchestrator at INIT. If empty,
	// the local hostname is used (original_source clientconnector.py
	// behavior).
	ClientName string `env:"SHOUT_CLIENT_NAME"`

	// Reconnect policy (spec.md §4.3): up to MaxConnTries attempts,
	// ConnSleep apart. Defaults give ~15 minutes of retries as spec.md's
	// measurement-connector variant calls for.
	MaxConnTries int           `env:"SHOUT_MAX_CONN_TRIES=180"`
	ConnSleep    time.Duration `env:"SHOUT_CONN_SLEEP=5s"`

	// Radio device arguments (out of scope per spec.md §6.5). cmd/measd
	// does not read them: it always runs radio.FakeDriver, which takes no
	// arguments.
	RadioArgs string `env:"SHOUT_RADIO_ARGS"`

	LogLevel  zerolog.Level `env:"SHOUT_LOG_LEVEL=info"`
	LogPretty bool          `env:"SHOUT_LOG_PRETTY=true"`
}
