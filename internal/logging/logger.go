// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production that
// writes to stderr.
func New(development bool) (*zap.Logger, error) {
	return build(development, nil)
}

// NewToFile is New writing to path instead of stderr. The terminal
// dashboard uses it so log lines do not tear the screen.
func NewToFile(development bool, path string) (*zap.Logger, error) {
	return build(development, []string{path})
}

func build(development bool, outputs []string) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if len(outputs) > 0 {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"
	if len(outputs) > 0 {
		cfg.OutputPaths = outputs
		cfg.ErrorOutputPaths = outputs
	}
	logger, err := cfg.Build()
	if err != nil {
		mode := "prod"
		if development {
			mode = "dev"
		}
		return nil, fmt.Errorf("build %s logger: %w", mode, err)
	}
	return logger, nil
}
