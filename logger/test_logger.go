package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewObserved returns a logger recording entries in memory.
// Usage:
//
//	log, logs := logger.NewObserved(zapcore.DebugLevel)
//	client, _ := kafka.NewClient(opts, log)
//	assert.Equal(t, 1, logs.FilterMessage("no handler registered for topic").Len())
func NewObserved(level zapcore.LevelEnabler) (*CtxZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return FromZap(zap.New(core), "test"), logs
}
