// Package logger provides leveled logging for the solo CLI and its
// internal packages.
//
// Output goes to stderr through zerolog's console writer so that
// command output (tables, plans) on stdout stays machine-parseable.
// The package exposes printf-style helpers because callers throughout
// the codebase log formatted one-liners rather than structured events.
package logger

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = newLogger(zerolog.InfoLevel)
)

func newLogger(level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Logger()
}

// SetVerbose switches the global level between info (default) and debug.
//
// Called once from the root command's PersistentPreRun; safe to call
// concurrently with logging.
func SetVerbose(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	mu.Lock()
	log = newLogger(level)
	mu.Unlock()
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Debug logs a formatted message at debug level.
func Debug(format string, args ...interface{}) {
	l := current()
	l.Debug().Msgf(format, args...)
}

// Info logs a formatted message at info level.
func Info(format string, args ...interface{}) {
	l := current()
	l.Info().Msgf(format, args...)
}

// Warn logs a formatted message at warn level.
func Warn(format string, args ...interface{}) {
	l := current()
	l.Warn().Msgf(format, args...)
}

// Error logs a formatted message at error level.
func Error(format string, args ...interface{}) {
	l := current()
	l.Error().Msgf(format, args...)
}
