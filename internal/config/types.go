package config

import "time"

// ShipyardConfig is the top-level configuration structure for shipyard.
type ShipyardConfig struct {
	Engine    EngineConfig    `yaml:"engine"`
	Lease     LeaseConfig     `yaml:"lease"`
	Storage   StorageConfig   `yaml:"storage,omitempty"`
	Templates TemplatesConfig `yaml:"templates,omitempty"`
	Clusters  []ClusterConfig `yaml:"clusters,omitempty"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// EngineConfig tunes sync runs.
type EngineConfig struct {
	RenderWorkers  int           `yaml:"renderWorkers,omitempty"`  // Components rendered concurrently (default: 4)
	ApplyWorkers   int           `yaml:"applyWorkers,omitempty"`   // Concurrent cluster writes per run (default: 4)
	MaxAttempts    int           `yaml:"maxAttempts,omitempty"`    // Attempts per action on transient errors (default: 5)
	InitialBackoff time.Duration `yaml:"initialBackoff,omitempty"` // Delay before the first retry (default: 200ms)
	MaxBackoff     time.Duration `yaml:"maxBackoff,omitempty"`     // Retry delay cap (default: 5s)
	RunTimeout     time.Duration `yaml:"runTimeout,omitempty"`     // Deadline of one run (default: 10m)
	LeaseTTL       time.Duration `yaml:"leaseTTL,omitempty"`       // Lease hold time, must exceed runTimeout (default: 11m)
	FieldManager   string        `yaml:"fieldManager,omitempty"`   // Server-side apply field manager (default: shipyard)
	DisableEvents  bool          `yaml:"disableEvents,omitempty"`  // Skip recording run outcomes as Kubernetes Events
}

// Lease backends.
const (
	LeaseBackendMemory     = "memory"
	LeaseBackendKubernetes = "kubernetes"
)

// LeaseConfig selects where instance leases live.
type LeaseConfig struct {
	Backend    string `yaml:"backend,omitempty"`    // memory or kubernetes (default: memory)
	Namespace  string `yaml:"namespace,omitempty"`  // Namespace of Lease objects (default: shipyard-system)
	Kubeconfig string `yaml:"kubeconfig,omitempty"` // Kubeconfig of the lease cluster (default: in-cluster or KUBECONFIG)
	Context    string `yaml:"context,omitempty"`    // Kubeconfig context
	Identity   string `yaml:"identity,omitempty"`   // Holder identity prefix (default: hostname)
}

// StorageConfig locates persisted instances, inventories and sync runs.
type StorageConfig struct {
	Path         string `yaml:"path,omitempty"`         // Defaults to the configuration directory
	RunRetention int    `yaml:"runRetention,omitempty"` // Terminal runs kept per instance, 0 keeps all (default: 50)
}

// TemplatesConfig locates template documents.
type TemplatesConfig struct {
	Directory      string `yaml:"directory,omitempty"`      // Extra template sets, layout <type>/<version>/*.yaml
	DisableBuiltin bool   `yaml:"disableBuiltin,omitempty"` // Do not offer the built-in template set
}

// GatewayConfig is a statically configured cluster gateway.
type GatewayConfig struct {
	Namespace  string   `yaml:"namespace"`
	Name       string   `yaml:"name"`
	RouteKinds []string `yaml:"routeKinds,omitempty"`
}

// ClusterConfig maps environments to a cluster.
type ClusterConfig struct {
	Name string `yaml:"name"`
	// Environments lists the environment names or UUIDs deployed to this
	// cluster. A cluster with Default set receives every other environment.
	Environments []string `yaml:"environments,omitempty"`
	Default      bool     `yaml:"default,omitempty"`

	Kubeconfig string `yaml:"kubeconfig,omitempty"`
	Context    string `yaml:"context,omitempty"`

	Gateway         *GatewayConfig `yaml:"gateway,omitempty"`
	DiscoverGateway bool           `yaml:"discoverGateway,omitempty"` // Read route kinds and gateway from the cluster on every sync
}

const (
	// MCPTransportStreamableHTTP is the streamable HTTP transport.
	MCPTransportStreamableHTTP = "streamable-http"
	// MCPTransportStdio is the standard I/O transport.
	MCPTransportStdio = "stdio"
)

// ServerConfig defines the MCP tool server.
type ServerConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Port      int    `yaml:"port,omitempty"`      // Port for the streamable HTTP endpoint (default: 8090)
	Host      string `yaml:"host,omitempty"`      // Host to bind to (default: localhost)
	Transport string `yaml:"transport,omitempty"` // Transport to use (default: streamable-http)
}

// MetricsConfig defines the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Address string `yaml:"address,omitempty"` // Listen address (default: :9090)
}

// ReconcileConfig defines the reconcile loop run by serve.
type ReconcileConfig struct {
	Enabled          bool          `yaml:"enabled,omitempty"`
	Watch            bool          `yaml:"watch,omitempty"`            // Sync instances when their files change
	Workers          int           `yaml:"workers,omitempty"`          // Concurrent reconciles (default: 2)
	DebounceInterval time.Duration `yaml:"debounceInterval,omitempty"` // Coalescing window for file events (default: 500ms)
	ResyncInterval   time.Duration `yaml:"resyncInterval,omitempty"`   // Periodic full resync, 0 disables it
	MaxRetries       int           `yaml:"maxRetries,omitempty"`       // Requeues per change (default: 5)
	InitialBackoff   time.Duration `yaml:"initialBackoff,omitempty"`   // Requeue delay (default: 1s)
	MaxBackoff       time.Duration `yaml:"maxBackoff,omitempty"`       // Requeue delay cap (default: 1m)
}
