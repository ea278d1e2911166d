package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"shipyard/internal/api"
	"shipyard/internal/applier"
	"shipyard/internal/lease"
	"shipyard/internal/planner"
	"shipyard/pkg/logging"
)

// execute walks one run through its phases. It always leaves the run in a
// terminal state, persisted, with the lease released.
func (o *Orchestrator) execute(ctx context.Context, inst *api.Instance, run *api.SyncRun, held lease.Lease) {
	var target *api.ClusterTarget
	defer func() { o.recordEvents(ctx, target, inst, run) }()
	defer o.finish(ctx, run, held)

	o.transition(ctx, run, api.SyncStatusRendering)

	target, err := o.cfg.Clusters.ClusterFor(ctx, inst.Environment)
	if err != nil {
		o.abort(ctx, run, fmt.Errorf("failed to resolve cluster: %w", err))
		return
	}
	logging.Debug(api.SubsystemOrchestrator, "Sync %s targets cluster %s", run.ID, target.Name)

	desired, failedRenders := o.recordRender(run, o.render(ctx, inst, target.Gateway))
	if err := context.Cause(ctx); err != nil {
		o.abort(ctx, run, err)
		return
	}

	o.transition(ctx, run, api.SyncStatusPlanning)

	inventory, err := o.cfg.Instances.GetInventory(ctx, inst.UUID)
	if err != nil {
		o.abort(ctx, run, fmt.Errorf("failed to load inventory: %w", err))
		return
	}
	namespace := inst.TargetNamespace()
	observed, err := applier.Observe(ctx, target.Client, inst.UUID, namespace, desired, inventory)
	if err != nil {
		o.abort(ctx, run, fmt.Errorf("failed to observe cluster %s: %w", target.Name, err))
		return
	}
	plan, err := planner.Build(planner.Input{
		InstanceUUID: inst.UUID,
		Namespace:    namespace,
		Desired:      desired,
		Observed:     observed,
		Held:         failedRenders,
	})
	if err != nil {
		o.abort(ctx, run, err)
		return
	}
	summary := plan.Summary()
	run.Plan = &summary

	if err := context.Cause(ctx); err != nil {
		o.abort(ctx, run, err)
		return
	}

	o.transition(ctx, run, api.SyncStatusApplying)

	var recorder applier.Recorder
	if o.cfg.Metrics != nil {
		recorder = o.cfg.Metrics
	}
	executor := applier.NewExecutor(target.Client, applier.ExecutorConfig{
		Workers: o.cfg.ApplyWorkers,
		Retry:   o.cfg.Retry,
	}, recorder)
	results := executor.Execute(ctx, plan)

	o.recordResults(inst, run, desired, plan, results)

	next := nextInventory(inventory, failedRenders, desired, plan, results)
	if err := o.cfg.Instances.SaveInventory(context.WithoutCancel(ctx), next); err != nil {
		logging.Error(api.SubsystemOrchestrator, err, "Failed to save inventory of instance %s", inst.UUID)
		if run.Error == "" {
			run.Error = fmt.Sprintf("failed to save inventory: %v", err)
			run.ErrorKind = api.ErrorKindInternal
		}
	}

	if ctx.Err() != nil && !allApplied(results) {
		run.Error = interruptMessage(context.Cause(ctx))
		run.ErrorKind = api.ErrorKindDeadline
		run.Status = api.SyncStatusFailed
		if anyApplied(results) {
			run.Status = api.SyncStatusPartiallyFailed
		}
		return
	}
	run.Status = terminalStatus(inst, run, results)
}

// transition moves the run to the next phase and persists it.
func (o *Orchestrator) transition(ctx context.Context, run *api.SyncRun, status api.SyncStatus) {
	run.Status = status
	if err := o.cfg.Runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		logging.Error(api.SubsystemOrchestrator, err, "Failed to record sync %s entering %s", run.ID, status)
	}
	logging.Debug(api.SubsystemOrchestrator, "Sync %s: %s", run.ID, status)
}

// abort fails the run before anything was applied. Components that were
// still pending fail with the same error.
func (o *Orchestrator) abort(ctx context.Context, run *api.SyncRun, err error) {
	kind := errorKind(err)
	msg := err.Error()
	if kind == api.ErrorKindDeadline {
		msg = interruptMessage(context.Cause(ctx))
	}

	run.Status = api.SyncStatusFailed
	run.Error = msg
	run.ErrorKind = kind
	for i := range run.Components {
		if run.Components[i].Status == api.ComponentStatusPending {
			run.Components[i].Status = api.ComponentStatusFailed
			run.Components[i].Error = msg
			run.Components[i].ErrorKind = kind
		}
	}
	logging.Error(api.SubsystemOrchestrator, err, "Sync %s of instance %s failed before applying", run.ID, run.InstanceUUID)
}

// finish stamps the completion time, persists the run and releases the
// lease. Errors from the last two are collected and logged together.
func (o *Orchestrator) finish(ctx context.Context, run *api.SyncRun, held lease.Lease) {
	ctx = context.WithoutCancel(ctx)
	if !run.Status.Terminal() {
		run.Status = api.SyncStatusFailed
		if run.Error == "" {
			run.Error = "sync ended unexpectedly"
			run.ErrorKind = api.ErrorKindInternal
		}
	}
	completed := o.cfg.Now()
	run.CompletedAt = &completed

	err := multierr.Combine(
		o.cfg.Runs.SaveRun(ctx, run),
		held.Release(ctx),
	)
	if err != nil {
		logging.Error(api.SubsystemOrchestrator, err, "Failed to close sync %s", run.ID)
	}

	o.cfg.Metrics.RunCompleted(run.Status, run.Duration())
	logging.Info(api.SubsystemOrchestrator, "Sync %s of instance %s finished: %s", run.ID, run.InstanceUUID, run.Status)
}

func interruptMessage(cause error) string {
	if errors.Is(cause, errCancelled) || errors.Is(cause, context.Canceled) {
		return errCancelled.Error()
	}
	return "sync deadline exceeded"
}
