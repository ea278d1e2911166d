package orchestrator

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"shipyard/internal/api"
	"shipyard/internal/capability"
	"shipyard/internal/template"
	"shipyard/pkg/logging"
)

// rendered is the render result of one enabled component.
type rendered struct {
	component api.Component
	exposure  api.ExposureResolution
	docs      []api.Document
	err       error
}

// render resolves exposure and renders every enabled component on a bounded
// pool. Results keep the declaration order of the components. A failing
// component never stops the others.
func (o *Orchestrator) render(ctx context.Context, inst *api.Instance, gw api.ClusterGatewayConfig) []rendered {
	enabled := inst.EnabledComponents()
	results := make([]rendered, len(enabled))

	var g errgroup.Group
	g.SetLimit(o.cfg.RenderWorkers)
	for i, comp := range enabled {
		g.Go(func() error {
			results[i] = o.renderComponent(ctx, inst, comp, gw)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) renderComponent(ctx context.Context, inst *api.Instance, comp api.Component, gw api.ClusterGatewayConfig) rendered {
	out := rendered{component: comp, exposure: capability.Resolve(gw, comp)}

	if err := ctx.Err(); err != nil {
		out.err = err
		return out
	}

	templates, err := o.cfg.Templates.TemplatesFor(ctx, comp.Type, comp.TemplateVersion)
	if err != nil {
		out.err = &api.RenderError{ComponentName: comp.Name, Reason: "template set unavailable", Err: err}
		return out
	}

	docs, err := o.cfg.Resolver.Resolve(template.Input{
		Instance:  inst,
		Component: comp,
		Exposure:  out.exposure,
		Templates: templates,
	})
	if err != nil {
		out.err = err
		return out
	}
	out.docs = docs
	return out
}

// recordRender copies render results onto the run's component outcomes and
// returns the desired documents of the successful components together with
// the set of components whose render failed.
func (o *Orchestrator) recordRender(run *api.SyncRun, results []rendered) ([]api.Document, map[string]bool) {
	var desired []api.Document
	held := make(map[string]bool)

	for _, r := range results {
		outcome := componentOutcome(run, r.component.UUID)
		if outcome == nil {
			continue
		}
		outcome.RequestedVisibility = r.exposure.Requested
		outcome.EffectiveVisibility = r.exposure.Effective
		outcome.RouteKind = r.exposure.RouteKind
		if w := r.exposure.Warning; w != nil {
			outcome.Warnings = append(outcome.Warnings, w.Error())
			o.cfg.Metrics.VisibilityDowngraded()
			logging.Warn(api.SubsystemOrchestrator, "Instance %s: %v", run.InstanceUUID, w)
		}

		if r.err != nil {
			held[r.component.UUID] = true
			outcome.Status = api.ComponentStatusFailed
			outcome.Error = r.err.Error()
			outcome.ErrorKind = errorKind(r.err)
			logging.Warn(api.SubsystemOrchestrator, "Instance %s: %v", run.InstanceUUID, r.err)
			continue
		}
		desired = append(desired, r.docs...)
	}
	return desired, held
}

func componentOutcome(run *api.SyncRun, componentUUID string) *api.ComponentOutcome {
	for i := range run.Components {
		if run.Components[i].UUID == componentUUID {
			return &run.Components[i]
		}
	}
	return nil
}

// errorKind maps err onto the error taxonomy, treating context errors as
// an expired deadline.
func errorKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, errCancelled) {
		return api.ErrorKindDeadline
	}
	return api.ErrorKind(err)
}
