// Package api holds the shared domain model of shipyard and the contracts
// between its subsystems.
//
// The package is deliberately free of behaviour: it defines the records the
// reconciliation engine consumes (Instance, Component, ClusterGatewayConfig,
// template documents), the records it produces (rendered Documents, SyncRun
// outcomes, the ownership Inventory) and the interfaces of the external
// collaborators it depends on (persistence, template store, cluster registry,
// cluster API).
//
// # Error taxonomy
//
// Every failure the engine reports is one of five typed errors, matched with
// errors.As:
//
//   - RenderError: template or settings could not be resolved; scoped to one Component.
//   - CapabilityError: requested visibility is not available on the cluster; a warning, never a failure.
//   - PlanError: the plan for an Instance cannot be computed safely; aborts the run before any mutation.
//   - ApplyError: a cluster call failed; transient errors were retried, permanent ones were not.
//   - LockError: another SyncRun holds the Instance lease.
//
// # Handler registry
//
// Like the rest of the codebase, the transport layers (MCP tools, reconcile
// loop, CLI) reach the sync engine through a small registry
// (RegisterSyncService / GetSyncService) instead of importing the
// orchestrator directly.
package api
