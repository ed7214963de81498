package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BootstrapLogger names the logger used before the settings are loaded.
const BootstrapLogger = "bootstrap"

// NewBootstrap creates a console logger on stderr for the start of a run,
// when no settings (and so no configured sinks) are available yet.
func NewBootstrap() (*Adapter, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = zap.NewAtomicLevelAt(Info.zapLevel())
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fromZap(l).String())
	}
	cfg.DisableStacktrace = true
	cfg.Sampling = nil

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build bootstrap logger: %w", err)
	}
	return NewAdapter(logger.Named(BootstrapLogger), BootstrapLogger, "", DefaultSpaces), nil
}
