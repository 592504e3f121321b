// Package logging configures the zerolog logger shared by the harvester packages.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs per-page fetch events and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs phase transitions, progress and run summaries.
	LevelInfo LogLevel = "info"

	// LevelWarn logs page failures and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs aborted runs and export errors only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog.Level.
// Unknown names fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a child of the global logger tagged with a component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-page detail
//   - page dispatched / fetched / failed with cause
//   - gate slot waits
//
// Info: run lifecycle
//   - phase transitions (discovering, dispatched, retry_dispatched, done)
//   - progress every N pages
//   - run summary (records, failed pages, duration)
//   - export targets written
//
// Warn: recoverable problems
//   - page failed on first pass (queued for retry)
//   - page failed on retry (permanent)
//   - run interrupted, partial result
//
// Error: fatal problems
//   - discovery failed, run aborted
//   - export failed
//
// Context Fields:
//   - run_id: harvest run identifier
//   - page: page index
//   - phase: harvester phase
//   - last_page, total_items: discovery metadata
//   - failed_pages: count or list of failed pages
//   - status_code, error_class: upstream failure detail
//   - duration: elapsed time
