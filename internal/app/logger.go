package app

import (
	"strings"

	"github.com/charlesng35/get2knowme/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level and format, defaulting to info/json.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.InitWithOptions(logger.Options{
		Level:  level,
		Format: cfg.LogFormat,
	})
}
