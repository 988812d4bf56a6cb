package app

import (
	"switchyard/internal/config"
	"switchyard/pkg/logging"
)

// Log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds the application configuration
type Config struct {
	LogLevel  logging.LogLevel
	LogFormat string

	// Silent discards all log output.
	Silent bool

	// ConfigPath is the configuration directory. Empty means
	// ~/.config/switchyard.
	ConfigPath string

	// Watch reloads the declared routes when the configuration changes.
	Watch bool

	// Switchyard is the loaded configuration, set during bootstrap.
	Switchyard *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(level logging.LogLevel, format, configPath string, watch bool) *Config {
	return &Config{
		LogLevel:   level,
		LogFormat:  format,
		ConfigPath: configPath,
		Watch:      watch,
	}
}
