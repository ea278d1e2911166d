package config

import "time"

const (
	// DefaultFieldManager is the server-side apply field manager.
	DefaultFieldManager = "shipyard"

	// DefaultLeaseNamespace holds Lease objects for the kubernetes backend.
	DefaultLeaseNamespace = "shipyard-system"
)

// GetDefaultConfig returns the default configuration for shipyard.
func GetDefaultConfig() ShipyardConfig {
	return ShipyardConfig{
		Engine: EngineConfig{
			RenderWorkers:  4,
			ApplyWorkers:   4,
			MaxAttempts:    5,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			RunTimeout:     10 * time.Minute,
			LeaseTTL:       11 * time.Minute,
			FieldManager:   DefaultFieldManager,
		},
		Lease: LeaseConfig{
			Backend:   LeaseBackendMemory,
			Namespace: DefaultLeaseNamespace,
		},
		Storage: StorageConfig{
			RunRetention: 50,
		},
		Server: ServerConfig{
			Port:      8090,
			Host:      "localhost",
			Transport: MCPTransportStreamableHTTP,
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Reconcile: ReconcileConfig{
			Workers:          2,
			DebounceInterval: 500 * time.Millisecond,
			MaxRetries:       5,
			InitialBackoff:   time.Second,
			MaxBackoff:       time.Minute,
		},
	}
}
