// Package logger holds the process-wide zap logger used by the packaging pipeline.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global *zap.SugaredLogger

// Init installs z as the global logger.
func Init(z *zap.SugaredLogger) { global = z }

// Logger returns the global logger, or a no-op logger if Init was never called.
func Logger() *zap.SugaredLogger {
	if global == nil {
		return zap.NewNop().Sugar()
	}
	return global
}

// New builds the console logger used by the CLI.
// Debug output (every external command line) is enabled when verbose is set.
func New(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return z.Sugar(), nil
}
