// Package log provides the structured logging interface used by cvscore.
//
// The Logger interface is slog-compatible so that any backend can be plugged in.
// The default backend is zerolog (see NewZerologLogger); TestLogger captures
// output for assertions in tests.
//
// Example usage:
//
//	logger := log.GetLogger().With(
//	    log.ModelNameKey, "svm",
//	    log.ComponentKey, "evaluation",
//	)
//	logger.Info("Fold evaluated",
//	    log.FoldKey, 3,
//	    log.AccuracyKey, 0.92,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are key-value pairs. Error additionally accepts an error as its first
// field, which is logged under ErrAttrKey together with its stack trace.
type Logger interface {
	// Debug logs detailed diagnostic information.
	Debug(msg string, fields ...any)

	// Info logs general operational information.
	Info(msg string, fields ...any)

	// Warn logs potentially problematic situations.
	Warn(msg string, fields ...any)

	// Error logs error conditions.
	//
	// Example:
	//   logger.Error("Fold failed",
	//       err,
	//       log.FoldKey, 4,
	//   )
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether records at level are emitted.
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

// normalizeFields turns a leading error in an odd-length field list into an
// ErrAttrKey pair so that every backend sees key-value pairs only.
func normalizeFields(fields []any) []any {
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			out := make([]any, 0, len(fields)+1)
			out = append(out, ErrAttrKey, err)
			return append(out, fields[1:]...)
		}
		// drop the dangling key
		return fields[:len(fields)-1]
	}
	return fields
}
