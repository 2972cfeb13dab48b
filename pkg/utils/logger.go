package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "kura"

// NewLogger returns the server logger. Debug mode uses the development
// config (console, debug level); otherwise JSON at info level with ISO8601
// timestamps.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment(zap.Fields(zap.String("service", serviceName)))
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build(zap.Fields(zap.String("service", serviceName)))
}

// NewCommandLogger returns a console logger for one-shot CLI commands.
// Only warnings and errors are written unless debug is set, so command
// output on stdout stays readable.
func NewCommandLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		cfg.DisableCaller = true
	}
	return cfg.Build()
}
