// Package logging provides subsystem-tagged, leveled logging for shipyard on
// top of Go's standard slog package.
//
// # Log Levels
//   - **Debug**: Detailed information for debugging and development
//   - **Info**: General informational messages about engine operation
//   - **Warn**: Warning messages, such as visibility downgrades
//   - **Error**: Error messages for failures and exceptional conditions
//
// Every entry carries the subsystem that emitted it and, for errors, the
// error text as a separate attribute.
//
// # Usage Examples
//
//	// Text output at Info level
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	// JSON output, for log aggregation
//	logging.Init(logging.FormatJSON, logging.LevelDebug, os.Stderr)
//
//	logging.Info("Orchestrator", "Sync %s started for instance %s", runID, instanceID)
//	logging.Warn("Capability", "Component %s downgraded to cluster visibility", name)
//	logging.Error("Applier", err, "Failed to apply %s", key)
//
// # Subsystem Organization
//
//   - **Bootstrap**: Application initialization and startup
//   - **Config**: Configuration loading and validation
//   - **Orchestrator**: Sync run lifecycle
//   - **Template**: Template resolution and rendering
//   - **Capability**: Gateway capability detection
//   - **Planner**: Plan computation
//   - **Applier**: Cluster mutations and retries
//   - **Lease**: Per-instance locking
//   - **Reconciler**: File watching and the reconcile queue
//   - **MCPServer**: Tool transport
//
// # Controller-Runtime Integration
//
// Init also installs the controller-runtime logger through
// logr.FromSlogHandler, so client and cache internals log through the same
// handler without warnings about an uninitialized logger.
//
// # Thread Safety
//
// All functions are safe for concurrent use. Init may be called again (for
// example by tests) to swap the output.
package logging
