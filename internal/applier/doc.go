// Package applier executes plans against a cluster.
//
// The Executor walks a plan's dependency graph with a bounded worker pool.
// An action starts once every action it depends on has been applied; when a
// dependency fails or is skipped, the action is skipped too. Deletes form a
// second wave that starts only after every create, update and namespace
// action has finished. Transient cluster errors (throttling, timeouts,
// conflicts, unavailable servers) are retried with exponential backoff;
// everything else fails the action on the first attempt.
//
// DynamicClient is the production api.ClusterClient. It writes with
// server-side apply under the "shipyard" field manager and resolves kinds
// through a discovery-backed REST mapper.
//
// Observe reads back the objects a plan is computed against.
package applier
