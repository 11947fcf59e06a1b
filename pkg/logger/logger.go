// Package logger builds the zerolog loggers used by the budgetd binaries.
// The server logs structured JSON to stdout; the operator CLI logs a console
// format to stderr so command output on stdout stays clean.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Enable pretty console output
}

// New creates the structured logger for the long-running service. It also
// sets the process-wide level, so derived component loggers inherit it.
func New(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level, zerolog.InfoLevel)

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// NewCLI creates a console logger on stderr for one-shot commands. Service
// chatter stays quiet at warn unless the given level raises it, and the
// global level is left alone so the CLI never mutes the caller's loggers.
func NewCLI(level string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).
		Level(parseLevel(level, zerolog.WarnLevel)).
		With().
		Timestamp().
		Logger()
}

// parseLevel maps a level name to a zerolog level. Empty and unrecognized
// names fall back rather than erroring; a bad LOG_LEVEL should never stop
// the process from starting.
func parseLevel(raw string, fallback zerolog.Level) zerolog.Level {
	if raw == "" {
		return fallback
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil || level == zerolog.NoLevel {
		return fallback
	}
	return level
}
