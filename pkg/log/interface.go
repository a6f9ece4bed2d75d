// Package log provides the structured logging interface used across dgpbench.
//
// The Logger interface is slog-shaped so call sites stay backend agnostic; the
// production backend is zerolog (see zerolog.go) and tests use TestLogger.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("training.runner").With(
//	    log.ModelNameKey, "random_forest",
//	    log.DGPKey, "dgp_01",
//	)
//	logger.Info("Unit completed",
//	    log.DatasetKey, "betadgp_data",
//	    log.SamplesKey, 1000,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. Error additionally accepts an error
// value as its first field; implementations record it under ErrAttrKey and
// attach the cockroachdb stack trace when one is available.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	// Use it to skip building expensive fields (per-candidate CV logs, for example).
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers. Components that need to be testable accept
// a provider (or a Logger) instead of reaching for the package default.
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
