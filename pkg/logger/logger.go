// Package logger builds the zap logger shared by every component.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Debug bool
}

// NewLogger returns a production (JSON) zap logger. Debug lowers the level to debug and adds
// caller information.
func NewLogger(cfg *LoggerConfig) (*zap.Logger, error) {
	mergedConfig := zap.NewProductionConfig()
	mergedConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	mergedConfig.Sampling = nil

	if cfg.Debug {
		mergedConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		mergedConfig.Development = true
	} else {
		mergedConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		mergedConfig.DisableCaller = true
	}

	return mergedConfig.Build()
}
