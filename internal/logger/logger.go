// Package logger configures the process-wide zap logger.
package logger

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pickup-map-api-server/config"
)

// Init builds a zap logger from cfg and installs it as zap.L().
func Init(cfg config.LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "logger: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	l, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "logger: build logger")
	}
	zap.ReplaceGlobals(l)
	return nil
}
