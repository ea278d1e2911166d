package reconciler

import (
	"context"
	"errors"
	"fmt"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

// InstanceReconciler syncs an instance and waits for the run to finish, so
// the worker count bounds the number of concurrent runs.
type InstanceReconciler struct {
	syncService api.SyncService
	instances   api.InstanceStore
}

// NewInstanceReconciler creates an InstanceReconciler.
func NewInstanceReconciler(syncService api.SyncService, instances api.InstanceStore) *InstanceReconciler {
	return &InstanceReconciler{syncService: syncService, instances: instances}
}

// GetResourceType implements Reconciler.
func (r *InstanceReconciler) GetResourceType() ResourceType {
	return ResourceTypeInstance
}

// List implements Lister.
func (r *InstanceReconciler) List(ctx context.Context) ([]string, error) {
	instances, err := r.instances.ListInstances(ctx)
	if err != nil {
		return nil, err
	}
	uuids := make([]string, 0, len(instances))
	for _, inst := range instances {
		uuids = append(uuids, inst.UUID)
	}
	return uuids, nil
}

// Reconcile implements Reconciler.
//
// A held lease requeues the request with backoff and is not a failure. A
// removed instance is not synced; resources it owned stay on the cluster.
func (r *InstanceReconciler) Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult {
	runID, err := r.syncService.StartSync(ctx, req.Name)
	if err != nil {
		var lockErr *api.LockError
		switch {
		case errors.As(err, &lockErr):
			logging.Debug(api.SubsystemReconciler, "Instance %s is being synced by %s, requeuing", req.Name, lockErr.Holder)
			return ReconcileResult{Requeue: true}
		case api.IsNotFound(err):
			logging.Info(api.SubsystemReconciler, "Instance %s no longer exists, nothing to sync", req.Name)
			return ReconcileResult{}
		default:
			return ReconcileResult{Error: err}
		}
	}

	run, err := r.syncService.Wait(ctx, runID)
	if err != nil {
		return ReconcileResult{RunID: runID, Error: fmt.Errorf("waiting for sync %s: %w", runID, err)}
	}

	switch run.Status {
	case api.SyncStatusSucceeded:
		logging.Info(api.SubsystemReconciler, "Instance %s synced by run %s", req.Name, runID)
		return ReconcileResult{RunID: runID}
	default:
		msg := run.Error
		if msg == "" {
			msg = string(run.Status)
		}
		return ReconcileResult{RunID: runID, Error: fmt.Errorf("sync %s %s: %s", runID, run.Status, msg)}
	}
}

// TemplateReconciler turns a change of a component type's templates into
// reconcile requests for every instance with an enabled component of that
// type.
type TemplateReconciler struct {
	instances api.InstanceStore
	enqueue   func(ResourceType, string)
}

// NewTemplateReconciler creates a TemplateReconciler feeding manager.
func NewTemplateReconciler(instances api.InstanceStore, manager *Manager) *TemplateReconciler {
	return &TemplateReconciler{instances: instances, enqueue: manager.TriggerReconcile}
}

// GetResourceType implements Reconciler.
func (r *TemplateReconciler) GetResourceType() ResourceType {
	return ResourceTypeTemplate
}

// Reconcile implements Reconciler.
func (r *TemplateReconciler) Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult {
	instances, err := r.instances.ListInstances(ctx)
	if err != nil {
		return ReconcileResult{Error: err}
	}

	componentType := api.ComponentType(req.Name)
	affected := 0
	for _, inst := range instances {
		for _, comp := range inst.EnabledComponents() {
			if comp.Type == componentType {
				r.enqueue(ResourceTypeInstance, inst.UUID)
				affected++
				break
			}
		}
	}
	logging.Info(api.SubsystemReconciler, "Templates of %s changed, %d instances queued", componentType, affected)
	return ReconcileResult{}
}
