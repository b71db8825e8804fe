package logutil

import (
	"fmt"
	"strings"
	"sync"

	"github.com/evdnx/golog"
)

var (
	sharedLogger     *golog.Logger
	sharedLoggerOnce sync.Once
	sharedLoggerErr  error

	levelMu sync.Mutex
	level   = golog.InfoLevel
)

// Default returns a lazily constructed shared logger.
func Default() *golog.Logger {
	sharedLoggerOnce.Do(func() {
		levelMu.Lock()
		lvl := level
		levelMu.Unlock()
		sharedLogger, sharedLoggerErr = golog.NewLogger(
			golog.WithStdOutProvider(golog.ConsoleEncoder),
			golog.WithLevel(lvl),
		)
	})

	if sharedLoggerErr != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", sharedLoggerErr))
	}

	return sharedLogger
}

// SetLevel selects the level used when the shared logger is first built.
// It has no effect once Default has been called.
func SetLevel(name string) {
	levelMu.Lock()
	defer levelMu.Unlock()
	level = ParseLevel(name)
}

// ParseLevel maps a config level name onto a golog level. Unknown names map to info.
func ParseLevel(name string) golog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return golog.DebugLevel
	case "warn", "warning":
		return golog.WarnLevel
	case "error", "fatal":
		return golog.ErrorLevel
	default:
		return golog.InfoLevel
	}
}
