// Package logging builds the zerolog.Logger shared by all three daemons,
// modeled on R2Northstar-Atlas's pkg/atlas.configureLogging: a single output
// writer, optionally wrapped in zerolog's console formatter.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Options configures the process-wide logger.
type Options struct {
	Level  zerolog.Level
	Pretty bool
	Output io.Writer // defaults to os.Stderr
}

// New builds a zerolog.Logger per opts.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}
	return zerolog.New(out).Level(opts.Level).With().Timestamp().Logger()
}
