// Package app provides application bootstrap and lifecycle management for shipyard.
//
// The package is the composition root: it is the only place that knows which
// concrete store, lease backend, cluster connector and transport are in use.
// Everything below it talks through the interfaces in internal/api.
//
// # Components
//
//  1. **Bootstrap (`bootstrap.go`)**: logging setup, configuration loading and
//     the Application lifecycle
//  2. **Configuration (`config.go`)**: runtime flags passed from the command line
//  3. **Services (`services.go`)**: service construction in dependency order and
//     API adapter registration
//  4. **Modes (`modes.go`)**: the long-running serve mode
//
// # Initialization Order
//
// Services are created so that nothing is looked up before it is registered:
//
//  1. Instance store, sync run store and template store
//  2. Lease backend (in-memory, or Kubernetes Lease objects)
//  3. Cluster registry, which connects lazily on first use
//  4. Metrics recorder and orchestrator
//  5. Orchestrator API adapter and instance store registration
//  6. Reconcile manager and MCP server, when enabled in configuration
//
// # Serve Mode
//
// Application.Run starts the metrics endpoint, the reconcile loop and the MCP
// server and blocks until the context is cancelled or SIGINT/SIGTERM arrives.
// One-shot commands (sync, plan, status) skip Run and call the registered
// api.SyncService directly.
//
// # Example
//
//	cfg := app.NewConfig(debug, configDir)
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//	return application.Run(ctx)
package app
