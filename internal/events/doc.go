// Package events records the outcome of sync runs as Kubernetes Events.
//
// After every run that reached a cluster, the orchestrator hands the run to
// an EventGenerator. The generator emits one run-level event and one event
// per failed or downgraded component, all in the instance namespace with the
// namespace as involved object, so that
//
//	kubectl get events -n <namespace> -l shipyard.io/instance=<uuid>
//
// shows what recent syncs did. Event names derive from the run ID, which
// keeps a retried write idempotent.
//
// Messages are rendered by a MessageTemplateEngine. Each reason has a default
// text/template with the sprig function library available; callers may
// replace them:
//
//	gen := events.NewEventGenerator(hostname)
//	_ = gen.Templates().SetTemplate(events.ReasonSyncFailed, "sync {{.RunID}} failed")
//
// Recording is best effort. RunFinished returns the combined errors and the
// orchestrator only logs them.
package events
