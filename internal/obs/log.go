package obs

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// LogOutput is where the shared logger writes unless replaced with SetLogger.
// Operational logs, including lost audit writes, go to stderr.
var LogOutput io.Writer = os.Stderr

var (
	loggerMu sync.RWMutex
	logger   = NewJSONLogger(LogOutput)
)

// NewJSONLogger builds the structured logger format used across the service.
func NewJSONLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}))
}

// Logger returns the shared structured logger.
func Logger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLogger swaps the shared logger and returns a func restoring the previous one.
func SetLogger(l *slog.Logger) (restore func()) {
	loggerMu.Lock()
	prev := logger
	logger = l
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}
