// Package logging builds the zerolog loggers handed to every component.
//
// Usage:
//
//	log := logging.New(logging.Config{Level: "debug", Format: "console"})
//	ranker := ranking.NewEngine(..., logging.Component(log, "ranking"))
//
// Components never reach for a global logger; the root engine threads a
// child logger with a "component" field into each service it builds.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is one of trace, debug, info, warn, error, disabled.
	Level string `koanf:"level" yaml:"level"`

	// Format is json or console.
	Format string `koanf:"format" yaml:"format"`

	// Output defaults to os.Stderr.
	Output io.Writer `koanf:"-" yaml:"-"`
}

// DefaultConfig returns info-level console logging on stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console"}
}

// New returns a logger for cfg.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger()
}

// Component returns a child of log tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Nop is a logger that discards everything. Handy in tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// ParseLevel maps a level name onto zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
