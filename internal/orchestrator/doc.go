// Package orchestrator drives sync runs for instances.
//
// A sync run moves through a fixed sequence of phases:
//
//	Pending -> Rendering -> Planning -> Applying -> Succeeded | PartiallyFailed | Failed
//
// # Rendering
//
// The target cluster is resolved from the instance's environment, then
// every enabled component is rendered on a bounded worker pool. The
// capability detector decides per component whether the requested
// visibility can be honored; a downgrade is a warning on the component
// outcome, never a failure. A component whose render fails is marked
// Failed and its existing resources are left untouched by the plan.
//
// # Planning
//
// One plan is built for the whole instance from the rendered documents and
// the platform-owned objects observed on the cluster. A plan error (for
// example an object at a desired key that the instance does not own) fails
// the run before any mutation.
//
// # Applying
//
// The plan is executed by the applier. Each action result is attributed to
// its component; results that belong to no enabled component (the
// namespace action, deletes of removed components) are kept on the run.
// Afterwards the ownership inventory is rewritten from what was actually
// applied.
//
// # Terminal status
//
//   - Succeeded: every enabled component succeeded
//   - PartiallyFailed: some succeeded and some failed, or only pruning failed
//   - Failed: none succeeded, or the run stopped before applying
//
// A run interrupted by its deadline or by CancelSync is Failed, or
// PartiallyFailed if some action was applied. Nothing is rolled back.
//
// # Mutual exclusion
//
// StartSync takes an exclusive lease keyed by instance UUID before
// recording the run. A second request for the same instance fails with a
// *api.LockError without creating a run. The lease is released when the
// run ends and expires on its own after the configured TTL.
package orchestrator
