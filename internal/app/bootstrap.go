package app

import (
	"context"
	"fmt"
	"os"

	"shipyard/internal/api"
	"shipyard/internal/config"
	"shipyard/pkg/logging"
)

// Application represents the main application structure that bootstraps and runs shipyard.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: Load configuration, initialize logging, setup services
//  2. Execution phase: serve, or run a single command against Services
//
// Example usage:
//
//	cfg := app.NewConfig(false, configDir)
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	defer application.Close()
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication configures logging, loads the shipyard configuration from
// cfg.ConfigPath unless it is already set, and initializes every service.
// Logs go to stderr so that command output on stdout stays parseable.
func NewApplication(cfg *Config) (*Application, error) {
	logging.Init(cfg.LogFormat, cfg.logLevel(), os.Stderr)

	if cfg.ConfigPath == "" {
		dir, err := config.GetUserConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.ConfigPath = dir
	}

	if cfg.ShipyardConfig == nil {
		shipyardCfg, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			logging.Error(api.SubsystemApp, err, "Failed to load shipyard configuration from path: %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load shipyard configuration from path %s: %w", cfg.ConfigPath, err)
		}
		cfg.ShipyardConfig = &shipyardCfg
		logging.Debug(api.SubsystemApp, "Loaded configuration from %s", cfg.ConfigPath)
	}

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error(api.SubsystemApp, err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Run serves until ctx is cancelled or the process is signalled.
func (a *Application) Run(ctx context.Context) error {
	return runServe(ctx, a.config.ShipyardConfig, a.services)
}

// Close stops active runs and releases every service.
func (a *Application) Close() {
	a.services.Shutdown()
}
