package app

import (
	"go.uber.org/zap"

	"github.com/classable/classable/pkg/logger"
)

// ConfigureLogging initialises the global logger from config and returns it.
func ConfigureLogging(cfg LoggingConfig) (*zap.Logger, error) {
	if cfg.Format == "console" {
		if err := logger.InitDevelopment(cfg.Level); err != nil {
			return nil, err
		}
	} else {
		if err := logger.Init(cfg.Level); err != nil {
			return nil, err
		}
	}
	return logger.Logger(), nil
}
