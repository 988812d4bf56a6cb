package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"switchyard/pkg/logging"
)

const (
	userConfigDir  = ".config/switchyard"
	configFileName = "config.yaml"
)

// osUserHomeDir is replaced in tests.
var osUserHomeDir = os.UserHomeDir

// DefaultConfigDir returns ~/.config/switchyard.
func DefaultConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// FilePath returns the path of config.yaml in configDir.
func FilePath(configDir string) string {
	return filepath.Join(configDir, configFileName)
}

// LoadConfig loads configuration from a single specified directory.
// The directory should contain config.yaml and optionally a routes
// subdirectory. The result is not validated.
func LoadConfig(configDir string) (Config, error) {
	configFilePath := FilePath(configDir)
	config := Default()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, &ConfigurationError{FilePath: configFilePath, ErrorType: ErrorTypeIO, Err: err}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, &ConfigurationError{FilePath: configFilePath, ErrorType: ErrorTypeParse, Err: err}
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	routes, err := NewRouteStore(configDir).LoadAll()
	if err != nil {
		return Config{}, err
	}
	if len(routes) > 0 {
		logging.Info("ConfigLoader", "Loaded %d route files from %s", len(routes), filepath.Join(configDir, RoutesDir))
	}
	config.Routes = append(config.Routes, routes...)
	return config, nil
}

// LoadAndValidate loads the configuration of configDir and validates it.
func LoadAndValidate(configDir string) (Config, error) {
	cfg, err := LoadConfig(configDir)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration in %s: %w", configDir, err)
	}
	return cfg, nil
}
