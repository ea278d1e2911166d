package app

import (
	"shipyard/internal/config"
	"shipyard/pkg/logging"
)

// Config holds the application configuration
type Config struct {
	// Debug settings
	Debug bool

	// LogFormat is text or json
	LogFormat logging.Format

	// Quiet discards log output below warnings, for one-shot commands
	// whose result is printed to stdout.
	Quiet bool

	// ConfigPath is the directory holding config.yaml. It is also the
	// default storage directory.
	ConfigPath string

	// Version is reported by the MCP server.
	Version string

	// ShipyardConfig is loaded from ConfigPath when nil.
	ShipyardConfig *config.ShipyardConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		LogFormat:  logging.FormatText,
		ConfigPath: configPath,
	}
}

// logLevel returns the level implied by the Debug and Quiet flags.
func (c *Config) logLevel() logging.LogLevel {
	switch {
	case c.Debug:
		return logging.LevelDebug
	case c.Quiet:
		return logging.LevelWarn
	default:
		return logging.LevelInfo
	}
}
