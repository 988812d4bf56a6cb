package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"switchyard/internal/config"
	"switchyard/pkg/logging"
)

// Application represents the main application structure that bootstraps
// and runs switchyard.
//
// Example usage:
//
//	cfg := app.NewConfig(logging.LevelInfo, app.LogFormatText, "", true)
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication configures logging, loads and validates the configuration
// directory and initializes the services.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	var logOutput io.Writer = os.Stdout
	if cfg.Silent {
		logOutput = io.Discard
	}
	if cfg.LogFormat == LogFormatJSON {
		logging.InitJSON(cfg.LogLevel, logOutput)
	} else {
		logging.InitForCLI(cfg.LogLevel, logOutput)
	}

	if cfg.ConfigPath == "" {
		dir, err := config.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.ConfigPath = dir
	}
	sc, err := config.LoadAndValidate(cfg.ConfigPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration from %s", cfg.ConfigPath)
		return nil, fmt.Errorf("failed to load configuration from %s: %w", cfg.ConfigPath, err)
	}
	cfg.Switchyard = &sc

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{config: cfg, services: services}, nil
}

// Services returns the services built during bootstrap.
func (a *Application) Services() *Services { return a.services }

// Run starts the services and blocks until ctx is done or the process
// receives SIGINT or SIGTERM, then stops them gracefully.
func (a *Application) Run(ctx context.Context) error {
	return runServe(ctx, a.config, a.services)
}
