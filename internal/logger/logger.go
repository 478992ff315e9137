// Package logger builds the application logger. The terminal belongs to the
// UI, so logs always go to a file.
package logger

import (
	"go.uber.org/zap"
)

type Config struct {
	Development bool
	// File receives the log output. Empty discards logs.
	File string
}

func New(cfg Config) (*zap.SugaredLogger, error) {
	if cfg.File == "" {
		return zap.NewNop().Sugar(), nil
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.OutputPaths = []string{cfg.File}
	zcfg.ErrorOutputPaths = []string{cfg.File}

	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
