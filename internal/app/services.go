package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"k8s.io/client-go/kubernetes"

	"shipyard/internal/api"
	"shipyard/internal/applier"
	"shipyard/internal/cluster"
	"shipyard/internal/config"
	"shipyard/internal/events"
	"shipyard/internal/lease"
	"shipyard/internal/mcpserver"
	"shipyard/internal/metrics"
	"shipyard/internal/orchestrator"
	"shipyard/internal/reconciler"
	"shipyard/internal/store"
	"shipyard/pkg/logging"
)

// Services holds all initialized services used by the application.
//
// The services are initialized in dependency order:
//  1. Stores (instances, runs, templates)
//  2. Cluster registry and lease backend
//  3. Orchestrator and its API adapter
//  4. Reconcile manager and MCP server, when enabled
type Services struct {
	Instances *store.FileStore
	Runs      *store.RunStore
	Templates *store.TemplateStore
	Clusters  *cluster.Registry
	Locker    lease.Locker
	Metrics   *metrics.Recorder

	// Orchestrator is also registered as the api.SyncService.
	Orchestrator *orchestrator.Orchestrator

	// Reconciler is nil unless reconcile.enabled is set.
	Reconciler *reconciler.Manager

	// MCPServer is nil unless server.enabled is set.
	MCPServer *mcpserver.Server

	adapter *orchestrator.Adapter
}

// InitializeServices creates and registers all required services.
//
// Nothing here contacts a cluster: workload clusters are connected on first
// use, and only the kubernetes lease backend builds a client up front.
func InitializeServices(cfg *Config) (*Services, error) {
	sc := cfg.ShipyardConfig
	if sc == nil {
		return nil, fmt.Errorf("shipyard configuration not loaded")
	}

	storagePath := sc.Storage.Path
	if storagePath == "" {
		storagePath = cfg.ConfigPath
	}

	var templateOpts []store.TemplateStoreOption
	if sc.Templates.Directory != "" {
		templateOpts = append(templateOpts, store.WithTemplateDirectory(sc.Templates.Directory))
	}
	if sc.Templates.DisableBuiltin {
		templateOpts = append(templateOpts, store.WithoutBuiltinTemplates())
	}

	locker, err := newLocker(sc.Lease)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s lease backend: %w", sc.Lease.Backend, err)
	}

	s := &Services{
		Instances: store.NewFileStore(storagePath),
		Runs:      store.NewRunStore(storagePath, store.WithRunRetention(sc.Storage.RunRetention)),
		Templates: store.NewTemplateStore(templateOpts...),
		Clusters:  cluster.NewRegistry(sc.Clusters, cluster.KubeConnector(sc.Engine.FieldManager)),
		Locker:    locker,
		Metrics:   metrics.NewRecorder(),
	}

	var recorder *events.EventGenerator
	if !sc.Engine.DisableEvents {
		host, _ := os.Hostname()
		recorder = events.NewEventGenerator(host)
	}

	s.Orchestrator = orchestrator.New(orchestrator.Config{
		Instances:     s.Instances,
		Runs:          s.Runs,
		Templates:     s.Templates,
		Clusters:      s.Clusters,
		Locker:        s.Locker,
		Metrics:       s.Metrics,
		RenderWorkers: sc.Engine.RenderWorkers,
		ApplyWorkers:  sc.Engine.ApplyWorkers,
		Retry: applier.RetryPolicy{
			MaxAttempts:    sc.Engine.MaxAttempts,
			InitialBackoff: sc.Engine.InitialBackoff,
			MaxBackoff:     sc.Engine.MaxBackoff,
		},
		RunTimeout: sc.Engine.RunTimeout,
		LeaseTTL:   sc.Engine.LeaseTTL,
		Events:     recorder,
	})

	// Adapters must be registered before the MCP tools or the reconciler
	// look the sync service up.
	s.adapter = orchestrator.NewAPIAdapter(s.Orchestrator)
	s.adapter.Register()
	api.RegisterInstanceStore(s.Instances)

	if sc.Reconcile.Enabled {
		s.Reconciler, err = newReconcileManager(sc, storagePath, s)
		if err != nil {
			s.Shutdown()
			return nil, err
		}
	}

	if sc.Server.Enabled {
		s.MCPServer = mcpserver.NewServer(sc.Server, cfg.Version)
	}

	logging.Debug(api.SubsystemApp, "Services initialized (storage: %s, lease: %s, clusters: %d)",
		storagePath, sc.Lease.Backend, len(sc.Clusters))
	return s, nil
}

// newLocker creates the configured lease backend.
func newLocker(cfg config.LeaseConfig) (lease.Locker, error) {
	switch cfg.Backend {
	case "", config.LeaseBackendMemory:
		return lease.NewMemoryLocker(nil), nil
	case config.LeaseBackendKubernetes:
		restConfig, err := cluster.RESTConfig(config.ClusterConfig{Kubeconfig: cfg.Kubeconfig, Context: cfg.Context})
		if err != nil {
			return nil, err
		}
		client, err := kubernetes.NewForConfig(restConfig)
		if err != nil {
			return nil, err
		}
		identity := cfg.Identity
		if identity == "" {
			identity, _ = os.Hostname()
		}
		return lease.NewKubernetesLocker(client, cfg.Namespace, identity, nil), nil
	default:
		return nil, fmt.Errorf("unknown lease backend %q", cfg.Backend)
	}
}

// newReconcileManager wires the instance and template reconcilers to the
// orchestrator.
func newReconcileManager(sc *config.ShipyardConfig, storagePath string, s *Services) (*reconciler.Manager, error) {
	rc := sc.Reconcile
	manager := reconciler.NewManager(reconciler.ManagerConfig{
		Watch:            rc.Watch,
		InstancesPath:    filepath.Join(storagePath, store.EntityInstances),
		TemplatesPath:    sc.Templates.Directory,
		WorkerCount:      rc.Workers,
		MaxRetries:       rc.MaxRetries,
		InitialBackoff:   rc.InitialBackoff,
		MaxBackoff:       rc.MaxBackoff,
		DebounceInterval: rc.DebounceInterval,
		ResyncInterval:   rc.ResyncInterval,
		ReconcileTimeout: sc.Engine.RunTimeout + time.Minute,
	}, reconciler.NewMetrics(s.Metrics.Registry()))

	if err := manager.RegisterReconciler(reconciler.NewInstanceReconciler(s.Orchestrator, s.Instances)); err != nil {
		return nil, err
	}
	if sc.Templates.Directory != "" {
		if err := manager.RegisterReconciler(reconciler.NewTemplateReconciler(s.Instances, manager)); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

// Shutdown stops active runs, unregisters the API adapters and forgets
// cluster connections. Servers started by Run are stopped by Run itself.
func (s *Services) Shutdown() {
	if s.Orchestrator != nil {
		s.Orchestrator.Stop()
	}
	if s.adapter != nil {
		s.adapter.Unregister()
	}
	if api.GetInstanceStore() == api.InstanceStore(s.Instances) {
		api.RegisterInstanceStore(nil)
	}
	if s.Clusters != nil {
		s.Clusters.Close()
	}
}
