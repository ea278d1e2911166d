package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

const (
	// reportingController identifies shipyard as the event source.
	reportingController = "shipyard.io/sync"

	// LabelRun carries the sync run ID on every event.
	LabelRun = "shipyard.io/sync-run"
)

// EventGenerator records the outcome of sync runs as Kubernetes Events in the
// instance namespace, so that `kubectl get events` shows what the last syncs
// did. The involved object is the namespace itself.
type EventGenerator struct {
	templates *MessageTemplateEngine
	component string
	now       func() time.Time
}

// NewEventGenerator creates a generator; component is the reporting
// instance, typically the host name.
func NewEventGenerator(component string) *EventGenerator {
	return &EventGenerator{
		templates: NewMessageTemplateEngine(),
		component: component,
		now:       time.Now,
	}
}

// Templates exposes the message templates for customization.
func (g *EventGenerator) Templates() *MessageTemplateEngine {
	return g.templates
}

// EventsFor returns the events describing a terminal run, run-level event
// first.
func (g *EventGenerator) EventsFor(cluster, namespace string, run *api.SyncRun) []Event {
	base := EventData{
		Instance:  run.InstanceUUID,
		Namespace: namespace,
		RunID:     run.ID,
		Cluster:   cluster,
		Error:     run.Error,
		Duration:  run.Duration(),
	}
	if run.Plan != nil {
		base.Creates = run.Plan.Creates
		base.Updates = run.Plan.Updates
		base.Deletes = run.Plan.Deletes
	}

	var componentEvents []Event
	for _, c := range run.Components {
		data := base
		data.Component = c.Name
		if c.Status == api.ComponentStatusFailed {
			base.Failed = append(base.Failed, c.Name)
			data.Error = c.Error
			componentEvents = append(componentEvents, g.event(ReasonComponentFailed, data))
		}
		if c.Downgraded() {
			data.Requested = string(c.RequestedVisibility)
			data.Effective = string(c.EffectiveVisibility)
			componentEvents = append(componentEvents, g.event(ReasonVisibilityDowngraded, data))
		}
	}

	var reason EventReason
	switch run.Status {
	case api.SyncStatusSucceeded:
		reason = ReasonSyncSucceeded
	case api.SyncStatusPartiallyFailed:
		reason = ReasonSyncPartiallyFailed
	default:
		reason = ReasonSyncFailed
	}
	return append([]Event{g.event(reason, base)}, componentEvents...)
}

func (g *EventGenerator) event(reason EventReason, data EventData) Event {
	return Event{
		Type:    getEventType(reason),
		Reason:  reason,
		Message: g.templates.Render(reason, data),
	}
}

// RunFinished records the events of a terminal run through client. Failures
// are returned combined; callers treat them as non-fatal.
func (g *EventGenerator) RunFinished(ctx context.Context, client api.ClusterClient, cluster, namespace string, run *api.SyncRun) error {
	var errs error
	for i, ev := range g.EventsFor(cluster, namespace, run) {
		obj, err := g.toObject(namespace, run, i, ev)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		logging.Debug(api.SubsystemEvents, "Recording event %s/%s: reason=%s, type=%s",
			namespace, obj.GetName(), ev.Reason, ev.Type)
		if _, err := client.Apply(ctx, obj); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to record %s event: %w", ev.Reason, err))
		}
	}
	return errs
}

// toObject converts ev to an unstructured core/v1 Event. Names are derived
// from the run ID so a retried write updates the same object.
func (g *EventGenerator) toObject(namespace string, run *api.SyncRun, index int, ev Event) (*unstructured.Unstructured, error) {
	now := metav1.NewTime(g.now())
	event := &corev1.Event{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Event"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("%s.%s.%d", namespace, strings.ToLower(run.ID), index),
			Namespace: namespace,
			Labels: map[string]string{
				LabelRun:          run.ID,
				api.LabelInstance: run.InstanceUUID,
			},
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion: "v1",
			Kind:       "Namespace",
			Name:       namespace,
		},
		Reason:              string(ev.Reason),
		Message:             ev.Message,
		Type:                string(ev.Type),
		Source:              corev1.EventSource{Component: reportingController, Host: g.component},
		FirstTimestamp:      now,
		LastTimestamp:       now,
		Count:               1,
		ReportingController: reportingController,
		ReportingInstance:   g.component,
	}

	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(event)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s event: %w", ev.Reason, err)
	}
	obj := &unstructured.Unstructured{Object: content}
	// creationTimestamp: null is rejected by server-side apply
	unstructured.RemoveNestedField(obj.Object, "metadata", "creationTimestamp")
	return obj, nil
}
