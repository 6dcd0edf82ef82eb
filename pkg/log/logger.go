package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/YuminosukeSato/cvscore/pkg/errors"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = NewZerologLogger(os.Stderr, LevelInfo, true)
)

// GetLogger returns the process-wide default logger.
func GetLogger() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetLogger replaces the process-wide default logger.
func SetLogger(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// SetupLogger installs a zerolog-backed default logger writing to w and routes
// warnings raised through errors.Warn to it.
func SetupLogger(loglevel string, w io.Writer, console bool) error {
	level, err := ToLogLevel(loglevel)
	if err != nil {
		return err
	}
	logger := NewZerologLogger(w, level, console)
	SetLogger(logger)
	errors.SetZerologWarnFunc(func(warning error) {
		logger.Warn(warning.Error(), ErrorTypeKey, fmt.Sprintf("%T", warning))
	})
	return nil
}

// ToLogLevel parses a level name.
func ToLogLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("log_level", "must be one of debug, info, warn, error", level)
	}
}
