// Package dependency provides a small directed acyclic graph used to order
// and serialize plan actions.
//
// Graph: nodes are plan actions, an edge A -> B means A must not start before
// B finished successfully.
//
// Node: one action with:
//   - ID: the action ID
//   - FriendlyName: human-readable label, used in logs
//   - Kind: apply, delete or namespace
//   - DependsOn: actions that must complete first
//
// # Operations
//
//   - TopologicalOrder: a deterministic execution order, or a CycleError
//   - Dependents / TransitiveDependents: what must be skipped when a node fails
//
// The graph is not safe for concurrent mutation. Executors build it once and
// only read from it afterwards.
package dependency
