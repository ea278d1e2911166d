package orchestrator

import (
	"context"
	"fmt"

	"shipyard/internal/api"
	"shipyard/internal/applier"
	"shipyard/internal/planner"
)

// Plan renders the instance and computes what a sync would do right now,
// without taking the lease or changing anything. Render failures are
// reported per component; a plan error is returned as is.
func (o *Orchestrator) Plan(ctx context.Context, instanceUUID string) (*api.PlanPreview, error) {
	inst, err := o.cfg.Instances.GetInstance(ctx, instanceUUID)
	if err != nil {
		return nil, err
	}
	if err := inst.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instance %s: %w", instanceUUID, err)
	}

	target, err := o.cfg.Clusters.ClusterFor(ctx, inst.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cluster: %w", err)
	}

	// A scratch run collects the component outcomes the same way a sync does.
	scratch := newRun(inst, o.cfg.Now())
	desired, failedRenders := o.recordRender(scratch, o.render(ctx, inst, target.Gateway))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inventory, err := o.cfg.Instances.GetInventory(ctx, inst.UUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	namespace := inst.TargetNamespace()
	observed, err := applier.Observe(ctx, target.Client, inst.UUID, namespace, desired, inventory)
	if err != nil {
		return nil, fmt.Errorf("failed to observe cluster %s: %w", target.Name, err)
	}
	plan, err := planner.Build(planner.Input{
		InstanceUUID: inst.UUID,
		Namespace:    namespace,
		Desired:      desired,
		Observed:     observed,
		Held:         failedRenders,
	})
	if err != nil {
		return nil, err
	}

	return &api.PlanPreview{
		InstanceUUID: inst.UUID,
		Cluster:      target.Name,
		Actions:      plan.Preview(),
		Unchanged:    plan.Unchanged,
		Components:   scratch.Components,
	}, nil
}
