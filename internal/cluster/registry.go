package cluster

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"

	"shipyard/internal/api"
	"shipyard/internal/applier"
	"shipyard/internal/capability"
	"shipyard/internal/config"
	"shipyard/pkg/logging"
)

// GatewayDiscoverer reads the gateway capabilities of a cluster.
type GatewayDiscoverer interface {
	Discover(ctx context.Context) (api.ClusterGatewayConfig, error)
}

// Connection is what the registry keeps per cluster.
type Connection struct {
	Client     api.ClusterClient
	Discoverer GatewayDiscoverer
}

// Connector opens a connection to a configured cluster.
type Connector func(cfg config.ClusterConfig) (*Connection, error)

// Registry resolves environments to the clusters configured for them.
// Connections are opened on first use and shared by every sync targeting
// the same cluster.
type Registry struct {
	clusters []config.ClusterConfig
	connect  Connector

	mu          sync.Mutex
	connections map[string]*Connection
}

// NewRegistry creates a registry. A nil connector uses KubeConnector with
// the default field manager.
func NewRegistry(clusters []config.ClusterConfig, connect Connector) *Registry {
	if connect == nil {
		connect = KubeConnector(config.DefaultFieldManager)
	}
	return &Registry{
		clusters:    clusters,
		connect:     connect,
		connections: make(map[string]*Connection),
	}
}

// ClusterFor implements api.ClusterRegistry. An environment is matched by
// name or UUID; unmatched environments go to the default cluster.
func (r *Registry) ClusterFor(ctx context.Context, env api.Environment) (*api.ClusterTarget, error) {
	cfg, err := r.lookup(env)
	if err != nil {
		return nil, err
	}

	conn, err := r.connection(cfg)
	if err != nil {
		return nil, err
	}

	return &api.ClusterTarget{Name: cfg.Name, Client: conn.Client, Gateway: r.gateway(ctx, cfg, conn)}, nil
}

func (r *Registry) lookup(env api.Environment) (config.ClusterConfig, error) {
	var fallback *config.ClusterConfig
	for i := range r.clusters {
		c := &r.clusters[i]
		for _, e := range c.Environments {
			if e == env.Name || (env.UUID != "" && e == env.UUID) {
				return *c, nil
			}
		}
		if c.Default && fallback == nil {
			fallback = c
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return config.ClusterConfig{}, fmt.Errorf("no cluster configured for environment %s", env.Name)
}

func (r *Registry) connection(cfg config.ClusterConfig) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.connections[cfg.Name]; ok {
		return conn, nil
	}
	conn, err := r.connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster %s: %w", cfg.Name, err)
	}
	r.connections[cfg.Name] = conn
	logging.Info(api.SubsystemCluster, "Connected to cluster %s", cfg.Name)
	return conn, nil
}

// gateway returns the gateway configuration for one sync. Discovered values
// fill in whatever the static configuration leaves empty. A failed discovery
// keeps the static configuration and records the error, so routed components
// it cannot serve are downgraded with the cause in their warning.
func (r *Registry) gateway(ctx context.Context, cfg config.ClusterConfig, conn *Connection) api.ClusterGatewayConfig {
	var gw api.ClusterGatewayConfig
	if cfg.Gateway != nil {
		gw.Reference = &api.GatewayReference{Namespace: cfg.Gateway.Namespace, Name: cfg.Gateway.Name}
		gw.RouteKinds = append([]string(nil), cfg.Gateway.RouteKinds...)
	}
	if !cfg.DiscoverGateway || conn.Discoverer == nil {
		return gw
	}

	discovered, err := conn.Discoverer.Discover(ctx)
	if err != nil {
		logging.Warn(api.SubsystemCluster, "Failed to discover gateway of cluster %s: %v", cfg.Name, err)
		gw.DiscoveryError = err.Error()
		return gw
	}
	if gw.Reference == nil {
		gw.Reference = discovered.Reference
	}
	if len(gw.RouteKinds) == 0 {
		gw.RouteKinds = discovered.RouteKinds
	}
	logging.Debug(api.SubsystemCluster, "Cluster %s gateway %v supports %v", cfg.Name, gw.Reference, gw.RouteKinds)
	return gw
}

// Close forgets every open connection.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections = make(map[string]*Connection)
}

// RESTConfig builds the REST config of a cluster: the named kubeconfig and
// context when set, the ambient configuration otherwise.
func RESTConfig(cfg config.ClusterConfig) (*rest.Config, error) {
	if cfg.Kubeconfig == "" && cfg.Context == "" {
		return ctrl.GetConfig()
	}
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if cfg.Kubeconfig != "" {
		rules.ExplicitPath = cfg.Kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.Context}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
}

// KubeConnector connects to real clusters with the given field manager.
func KubeConnector(fieldManager string) Connector {
	return func(cfg config.ClusterConfig) (*Connection, error) {
		restConfig, err := RESTConfig(cfg)
		if err != nil {
			return nil, err
		}
		client, err := applier.NewDynamicClientForConfig(restConfig, fieldManager)
		if err != nil {
			return nil, err
		}
		conn := &Connection{Client: client}
		if cfg.DiscoverGateway {
			disc, err := discovery.NewDiscoveryClientForConfig(restConfig)
			if err != nil {
				return nil, fmt.Errorf("failed to create discovery client: %w", err)
			}
			dyn, err := dynamic.NewForConfig(restConfig)
			if err != nil {
				return nil, fmt.Errorf("failed to create dynamic client: %w", err)
			}
			conn.Discoverer = capability.NewDiscoverer(disc, dyn)
		}
		return conn, nil
	}
}

// StaticRegistry sends every environment to one cluster.
type StaticRegistry struct {
	Target api.ClusterTarget
}

// ClusterFor implements api.ClusterRegistry.
func (s *StaticRegistry) ClusterFor(context.Context, api.Environment) (*api.ClusterTarget, error) {
	target := s.Target
	if s.Target.Gateway.Reference != nil {
		ref := *s.Target.Gateway.Reference
		target.Gateway.Reference = &ref
	}
	target.Gateway.RouteKinds = append([]string(nil), s.Target.Gateway.RouteKinds...)
	return &target, nil
}

var (
	_ api.ClusterRegistry = (*Registry)(nil)
	_ api.ClusterRegistry = (*StaticRegistry)(nil)
)
