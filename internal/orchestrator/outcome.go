package orchestrator

import (
	"sort"

	"shipyard/internal/api"
	"shipyard/internal/planner"
)

// recordResults attributes action results to the components that own them
// and settles the status of every component that rendered.
func (o *Orchestrator) recordResults(inst *api.Instance, run *api.SyncRun, desired []api.Document, plan *planner.Plan, results []api.ActionResult) {
	for _, r := range results {
		outcome := componentOutcome(run, r.ComponentUUID)
		if r.ComponentUUID == "" || outcome == nil {
			run.Actions = append(run.Actions, r)
			continue
		}
		outcome.Actions = append(outcome.Actions, r)
	}

	byID := resultsByID(results)
	unchanged := make(map[api.ResourceKey]bool, len(plan.Unchanged))
	for _, k := range plan.Unchanged {
		unchanged[k] = true
	}

	for _, comp := range inst.EnabledComponents() {
		outcome := componentOutcome(run, comp.UUID)
		if outcome == nil || outcome.Status != api.ComponentStatusPending {
			continue
		}

		for _, doc := range desired {
			if doc.ComponentUUID != comp.UUID {
				continue
			}
			if unchanged[doc.Key] || applied(byID, planner.ActionID(api.ActionCreate, doc.Key)) ||
				applied(byID, planner.ActionID(api.ActionUpdate, doc.Key)) {
				outcome.AppliedResources = append(outcome.AppliedResources, doc.Key)
			}
		}

		outcome.Status = api.ComponentStatusSucceeded
		for _, r := range outcome.Actions {
			if r.Outcome == api.OutcomeApplied {
				continue
			}
			outcome.Status = api.ComponentStatusFailed
			outcome.Error = r.Error
			if outcome.Error == "" {
				outcome.Error = r.Reason
			}
			outcome.ErrorKind = api.ErrorKindApply
			if r.Reason == api.SkipReasonDeadline {
				outcome.ErrorKind = api.ErrorKindDeadline
			}
			break
		}
	}
}

// terminalStatus derives the final status from the component outcomes.
// Failed deletes of resources whose component is no longer enabled leave
// the run partially failed when some component succeeded, failed otherwise.
func terminalStatus(inst *api.Instance, run *api.SyncRun, results []api.ActionResult) api.SyncStatus {
	enabled := make(map[string]bool)
	for _, c := range inst.EnabledComponents() {
		enabled[c.UUID] = true
	}

	var succeeded, failed int
	for _, outcome := range run.Components {
		if !enabled[outcome.UUID] {
			continue
		}
		switch outcome.Status {
		case api.ComponentStatusSucceeded:
			succeeded++
		case api.ComponentStatusFailed:
			failed++
		}
	}

	pruneFailed := false
	for _, r := range results {
		if r.Verb == api.ActionDelete && !enabled[r.ComponentUUID] && r.Outcome != api.OutcomeApplied {
			pruneFailed = true
			break
		}
	}

	switch {
	case failed == 0 && !pruneFailed:
		return api.SyncStatusSucceeded
	case succeeded > 0:
		return api.SyncStatusPartiallyFailed
	default:
		return api.SyncStatusFailed
	}
}

// nextInventory computes the inventory after a run: what the engine knows
// to exist on the cluster for each component. Held components keep their
// previous entries, failed creates are dropped, failed updates keep the
// observed digest and failed deletes stay recorded.
func nextInventory(prev *api.Inventory, held map[string]bool, desired []api.Document, plan *planner.Plan, results []api.ActionResult) *api.Inventory {
	next := api.NewInventory(plan.InstanceUUID)
	for componentUUID := range held {
		if entries, ok := prev.Components[componentUUID]; ok {
			next.Components[componentUUID] = append([]api.InventoryEntry(nil), entries...)
		}
	}
	add := func(componentUUID string, e api.InventoryEntry) {
		if componentUUID == "" {
			return
		}
		next.Components[componentUUID] = append(next.Components[componentUUID], e)
	}

	byKey := make(map[api.ResourceKey]*api.Document, len(desired))
	for i := range desired {
		byKey[desired[i].Key] = &desired[i]
	}
	for _, k := range plan.Unchanged {
		if doc, ok := byKey[k]; ok {
			add(doc.ComponentUUID, desiredEntry(doc))
		}
	}

	byID := resultsByID(results)
	for _, a := range plan.Actions {
		ok := applied(byID, a.ID)
		switch a.Verb {
		case api.ActionCreate:
			if ok {
				add(a.ComponentUUID, desiredEntry(a.Desired))
			}
		case api.ActionUpdate:
			if ok {
				add(a.ComponentUUID, desiredEntry(a.Desired))
			} else if a.Observed != nil && a.Observed.Owner != nil {
				add(a.Observed.Owner.ComponentUUID, observedEntry(a.Observed))
			}
		case api.ActionDelete:
			if !ok && a.Observed != nil {
				add(a.ComponentUUID, observedEntry(a.Observed))
			}
		}
	}

	for uuid := range next.Components {
		entries := next.Components[uuid]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key.String() < entries[j].Key.String() })
	}
	return next
}

func desiredEntry(doc *api.Document) api.InventoryEntry {
	return api.InventoryEntry{Key: doc.Key, APIVersion: doc.APIVersion, Digest: doc.Digest}
}

func observedEntry(obs *api.ObservedResource) api.InventoryEntry {
	return api.InventoryEntry{Key: obs.Key, APIVersion: obs.APIVersion, Digest: obs.Digest}
}

func resultsByID(results []api.ActionResult) map[string]api.ActionResult {
	out := make(map[string]api.ActionResult, len(results))
	for _, r := range results {
		out[r.ActionID] = r
	}
	return out
}

func applied(byID map[string]api.ActionResult, id string) bool {
	r, ok := byID[id]
	return ok && r.Outcome == api.OutcomeApplied
}

func anyApplied(results []api.ActionResult) bool {
	for _, r := range results {
		if r.Outcome == api.OutcomeApplied {
			return true
		}
	}
	return false
}

func allApplied(results []api.ActionResult) bool {
	for _, r := range results {
		if r.Outcome != api.OutcomeApplied {
			return false
		}
	}
	return true
}
