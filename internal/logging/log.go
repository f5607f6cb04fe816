// Package logging wires zerolog structured logging for every subsystem.
// A single process-wide logger is configured once at startup; each
// subsystem gets a "component"-scoped child logger rather than reaching
// for the global logger directly, so log lines are always attributable.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is the subset of zerolog levels the engine's Config surface
// recognizes.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how the root logger is constructed.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// New builds a root logger from cfg. Unlike a package-level global, New
// returns a value the caller threads through construction — components
// derive their own sub-logger from it via WithComponent.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		return zerolog.New(output).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagging every line with the
// subsystem it came from, e.g. "pager", "buffer_pool", "raft", "planner".
func WithComponent(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// Nop returns a logger that discards everything, for tests and for
// components constructed without an explicit logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
