package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"shipyard/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/shipyard"
	configFileName = "config.yaml"
)

// osUserHomeDir is replaced in tests.
var osUserHomeDir = os.UserHomeDir

// GetUserConfigDir returns ~/.config/shipyard.
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

func GetDefaultConfigPathOrPanic() string {
	dir, err := GetUserConfigDir()
	if err != nil {
		panic(err)
	}
	return dir
}

// LoadConfig loads configuration from a single specified directory.
// The directory should contain config.yaml; missing keys keep their defaults.
// The loaded configuration is validated and every problem is reported in a
// ConfigurationErrorCollection.
func LoadConfig(configPath string) (ShipyardConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return ShipyardConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		collection := NewConfigurationErrorCollection()
		collection.Add(NewConfigurationError(configFilePath, ErrorKindParse, "", err.Error()))
		return ShipyardConfig{}, collection
	}

	if verrs := config.Validate(); verrs.HasErrors() {
		collection := NewConfigurationErrorCollection()
		for _, verr := range verrs {
			collection.Add(NewConfigurationError(configFilePath, ErrorKindValidation, verr.Field, verr.Message))
		}
		return ShipyardConfig{}, collection
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}
