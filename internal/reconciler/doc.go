// Package reconciler keeps instances synced while shipyard serves.
//
// A Manager feeds reconcile requests into a rate limited work queue and
// processes them with a fixed pool of workers. Requests come from three
// sources:
//
//   - file changes below the instances and templates directories, debounced
//     by a FilesystemDetector
//   - a full resync on startup and, optionally, on a fixed interval
//   - TriggerReconcile
//
// InstanceReconciler starts a sync run per request and waits for it. A
// request rejected because another run holds the instance lease is requeued
// with backoff rather than counted as a failure. TemplateReconciler fans a
// template change out to the instances using that component type.
//
// Example usage:
//
//	manager := reconciler.NewManager(cfg, reconciler.NewMetrics(registry))
//	_ = manager.RegisterReconciler(reconciler.NewInstanceReconciler(syncService, instances))
//	if err := manager.Start(ctx); err != nil {
//	    return fmt.Errorf("failed to start reconciliation: %w", err)
//	}
//	defer manager.Stop()
package reconciler
