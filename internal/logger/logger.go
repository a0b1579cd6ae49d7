package logger

import (
	"log"

	"go.uber.org/zap"
)

// Log is the shared application logger. InitLogger must be called once
// from main before any other package logs.
var Log *zap.Logger

// InitLogger sets up the global zap logger.
func InitLogger() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	Log = logger
}

// InitTestLogger swaps in a no-op logger for tests.
func InitTestLogger() {
	Log = zap.NewNop()
}

// Sync flushes any buffered log entries.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
