// Package config provides configuration management for shipyard.
//
// Configuration is loaded from a single directory. The default directory is
// ~/.config/shipyard; commands accept --config-path to use another one.
//
// # Configuration Directory
//
// The directory contains:
//   - config.yaml (engine, lease, storage, templates, clusters, server,
//     metrics and reconcile sections)
//   - instances/ with one YAML document per Instance
//   - inventories/ and syncruns/ written by the engine
//
// A missing config.yaml yields GetDefaultConfig. Keys present in the file
// override the defaults one by one. Durations are written as Go duration
// strings ("30s", "10m").
//
// # Validation
//
// LoadConfig validates the result and reports every problem at once in a
// ConfigurationErrorCollection, so a broken file is fixed in one pass.
//
// # Entity Storage System
//
// Storage provides the file layout used by the stores: one document per
// entity in <configPath>/<entityType>/<name>.yaml. Writes replace files
// atomically.
package config
