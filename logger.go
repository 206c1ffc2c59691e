package vkfractal

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var loggerPtr atomic.Pointer[zap.Logger]

func init() {
	loggerPtr.Store(zap.NewNop())
}

// SetLogger sets the logger used by this package and its validation layer
// callback. A nil logger restores the default, which discards everything.
//
// Levels:
//   - Debug: swapchain recreation, per frame resource reclaim
//   - Info: device selection, pipeline creation
//   - Warn: validation warnings, recoverable frame failures
//   - Error: validation errors
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger.
func Logger() *zap.Logger {
	return loggerPtr.Load()
}
