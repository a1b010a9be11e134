// Package logger holds the process-wide zap logger.
package logger

import (
	"go.uber.org/zap"
)

// Logger wraps a zap logger that starts as a no-op until Init is called.
type Logger struct {
	Log *zap.Logger
}

// New returns a Logger with a no-op zap logger.
func New() *Logger {
	return &Logger{Log: zap.NewNop()}
}

// Init replaces the logger with a production logger at the given level
// ("debug", "info", "warn", "error"; case-insensitive).
func (l *Logger) Init(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	zl, err := cfg.Build()
	if err != nil {
		return err
	}
	l.Log = zl
	return nil
}
