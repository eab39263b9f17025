// Package logger builds the zap logger shared by every component.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects where and how verbosely to log.
type Config struct {
	File   string `env:"GITNEXT_LOG_FILE"`
	Level  string `env:"GITNEXT_LOG_LEVEL" env-default:"info"`
	Stderr bool   `env:"GITNEXT_LOG_STDERR" env-default:"false"`
}

// New returns a JSON logger writing to cfg.File, and to stderr as well when
// cfg.Stderr is set. The terminal UI owns stdout, so nothing is ever
// logged there.
func New(cfg *Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var outputs []string
	if cfg.File != "" {
		outputs = append(outputs, cfg.File)
	}
	if cfg.Stderr || len(outputs) == 0 {
		outputs = append(outputs, "stderr")
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = outputs
	zc.ErrorOutputPaths = outputs
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return log, nil
}
