// Package planner diffs rendered documents against the platform-owned objects
// observed on a cluster and produces an ordered, dependency-annotated plan.
//
// Resources are matched on (kind, namespace, name):
//
//   - no observed object: create
//   - owned object with a different digest: update
//   - owned object with the same digest: unchanged, not an action
//   - owned object with no desired document: delete
//   - unowned object at a desired key: PlanError, the run stops
//
// Objects owned by components whose render failed in the same run are kept
// as they are. Deletes are the only garbage collection path and are ordered
// after every create and update.
package planner
