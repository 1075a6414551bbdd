package vmlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
	loggerMu   sync.RWMutex
)

// Logger returns the runtime's logger instance. It uses a no-op logger by
// default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		loggerMu.Lock()
		if logger == nil {
			logger = zap.NewNop()
		}
		loggerMu.Unlock()
	})
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLogger installs l as the process-wide logger. Must be called before
// any runtime package calls Logger() for the first time, or after, to
// replace it — later calls to Logger() always see the latest value.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// debug gates the Debugf helper. Flip via EnableDebug for troubleshooting
// sessions; left off by default to avoid the Sugar() allocation overhead.
var debug = false

// EnableDebug turns the Debugf helper on or off process-wide.
func EnableDebug(on bool) {
	debug = on
}

// Debugf is a conditionally no-op debug helper.
func Debugf(format string, args ...any) {
	if debug {
		Logger().Sugar().Debugf(format, args...)
	}
}
