package orchestrator

import (
	"context"
	"time"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

const eventTimeout = 10 * time.Second

// recordEvents writes the run outcome as Kubernetes Events in the instance
// namespace. Runs that never reached a cluster have nowhere to record to.
func (o *Orchestrator) recordEvents(ctx context.Context, target *api.ClusterTarget, inst *api.Instance, run *api.SyncRun) {
	if o.cfg.Events == nil || target == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	if err := o.cfg.Events.RunFinished(ctx, target.Client, target.Name, inst.TargetNamespace(), run); err != nil {
		logging.Warn(api.SubsystemOrchestrator, "Failed to record events of sync %s: %v", run.ID, err)
	}
}
