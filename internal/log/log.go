// Package log provides the package-level structured logger used across the
// receiver. Every component logs through here rather than fmt/stdlib log,
// matching the call sites the teacher repo's internal/utils/log package was
// built for (log.Debug/Info/Warn/Error/Fatal(msg string, fields ...zap.Field)).
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l
}

// SetDevelopment swaps in a human-readable development logger. Intended to
// be called once at startup from internal/config based on the loaded
// environment.
func SetDevelopment() {
	l, err := zap.NewDevelopment()
	if err != nil {
		return
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetLogger replaces the package-level logger outright. Mainly useful from
// tests that want to capture output with an observer core.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, fields ...zap.Field) { current().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { current().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { current().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { current().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { current().Fatal(msg, fields...) }

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error { return current().Sync() }
