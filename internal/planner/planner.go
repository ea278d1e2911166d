package planner

import (
	"encoding/json"
	"fmt"
	"sort"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

// Input is everything a plan is computed from.
type Input struct {
	InstanceUUID string
	Namespace    string

	// Desired holds the rendered documents of every successfully rendered
	// enabled component, in component then render order.
	Desired []api.Document

	// Observed holds the cluster objects found at desired keys and the
	// objects labelled with the instance. Objects without a valid ownership
	// marker are only used to detect collisions.
	Observed []api.ObservedResource

	// Held lists components whose render failed in this run. Their owned
	// resources are neither updated nor deleted.
	Held map[string]bool
}

// Build computes the plan. It fails with a *api.PlanError when the desired
// state cannot be reached without touching something the instance does not
// own, or when the desired state is ambiguous.
func Build(in Input) (*Plan, error) {
	planErr := func(key *api.ResourceKey, reason string) error {
		return &api.PlanError{InstanceUUID: in.InstanceUUID, Key: key, Reason: reason}
	}

	observed := make(map[api.ResourceKey]*api.ObservedResource, len(in.Observed))
	for i := range in.Observed {
		o := &in.Observed[i]
		if prev, dup := observed[o.Key]; dup && prev.OwnedBy(in.InstanceUUID) {
			continue
		}
		observed[o.Key] = o
	}

	plan := &Plan{InstanceUUID: in.InstanceUUID, Namespace: in.Namespace}
	desiredKeys := make(map[api.ResourceKey]string, len(in.Desired))
	var applies []Action

	for i := range in.Desired {
		doc := &in.Desired[i]
		key := doc.Key
		if owner, dup := desiredKeys[key]; dup {
			return nil, planErr(&key, fmt.Sprintf("rendered by components %s and %s", owner, doc.ComponentUUID))
		}
		desiredKeys[key] = doc.ComponentUUID

		obs, exists := observed[key]
		switch {
		case !exists:
			applies = append(applies, Action{
				ID:            ActionID(api.ActionCreate, key),
				Verb:          api.ActionCreate,
				Key:           key,
				APIVersion:    doc.APIVersion,
				ComponentUUID: doc.ComponentUUID,
				Desired:       doc,
			})
		case !obs.OwnedBy(in.InstanceUUID):
			return nil, planErr(&key, "an object not owned by this instance already exists")
		case obs.Digest == doc.Digest && obs.Owner.ComponentUUID == doc.ComponentUUID:
			plan.Unchanged = append(plan.Unchanged, key)
		default:
			patch, err := mergePatch(obs, doc)
			if err != nil {
				return nil, &api.PlanError{InstanceUUID: in.InstanceUUID, Key: &key, Reason: "cannot diff", Err: err}
			}
			applies = append(applies, Action{
				ID:            ActionID(api.ActionUpdate, key),
				Verb:          api.ActionUpdate,
				Key:           key,
				APIVersion:    doc.APIVersion,
				ComponentUUID: doc.ComponentUUID,
				Desired:       doc,
				Observed:      obs,
				Patch:         patch,
			})
		}
	}

	var deletes []Action
	for i := range in.Observed {
		obs := &in.Observed[i]
		if observed[obs.Key] != obs || !obs.OwnedBy(in.InstanceUUID) {
			continue
		}
		if _, wanted := desiredKeys[obs.Key]; wanted {
			continue
		}
		if in.Held[obs.Owner.ComponentUUID] {
			logging.Debug(api.SubsystemPlanner, "Keeping %s: component %s failed to render", obs.Key, obs.Owner.ComponentUUID)
			continue
		}
		deletes = append(deletes, Action{
			ID:            ActionID(api.ActionDelete, obs.Key),
			Verb:          api.ActionDelete,
			Key:           obs.Key,
			APIVersion:    obs.APIVersion,
			ComponentUUID: obs.Owner.ComponentUUID,
			Observed:      obs,
		})
	}

	sort.SliceStable(applies, func(i, j int) bool {
		return kindRank(applies[i].Key.Kind) < kindRank(applies[j].Key.Kind)
	})
	sort.SliceStable(deletes, func(i, j int) bool {
		ri, rj := kindRank(deletes[i].Key.Kind), kindRank(deletes[j].Key.Kind)
		if ri != rj {
			return ri > rj
		}
		return deletes[i].Key.String() < deletes[j].Key.String()
	})

	linkApplies(applies)
	linkDeletes(deletes, applies)

	needsNamespace := false
	for _, a := range applies {
		if a.Verb == api.ActionCreate {
			needsNamespace = true
			break
		}
	}
	if needsNamespace {
		nsID := NamespaceActionID(in.Namespace)
		plan.Actions = append(plan.Actions, Action{
			ID:   nsID,
			Verb: api.ActionEnsureNamespace,
			Key:  api.ResourceKey{Kind: "Namespace", Name: in.Namespace},
		})
		for i := range applies {
			if applies[i].Verb == api.ActionCreate {
				applies[i].DependsOn = append([]string{nsID}, applies[i].DependsOn...)
			}
		}
	}

	plan.Actions = append(plan.Actions, applies...)
	plan.Actions = append(plan.Actions, deletes...)

	if _, err := plan.Graph().TopologicalOrder(); err != nil {
		return nil, &api.PlanError{InstanceUUID: in.InstanceUUID, Reason: "action ordering", Err: err}
	}

	s := plan.Summary()
	logging.Debug(api.SubsystemPlanner, "Plan for instance %s: %d create, %d update, %d delete, %d unchanged",
		in.InstanceUUID, s.Creates, s.Updates, s.Deletes, s.Unchanged)
	return plan, nil
}

// linkApplies makes every apply depend on the applies of the same component
// with a lower kind rank.
func linkApplies(applies []Action) {
	for i := range applies {
		rank := kindRank(applies[i].Key.Kind)
		for j := range applies {
			if applies[j].ComponentUUID == applies[i].ComponentUUID && kindRank(applies[j].Key.Kind) < rank {
				applies[i].DependsOn = append(applies[i].DependsOn, applies[j].ID)
			}
		}
	}
}

// linkDeletes makes every delete wait for the applies of its component and
// for the deletes of the same component with a higher kind rank, so routes
// disappear before the services they point at.
func linkDeletes(deletes, applies []Action) {
	for i := range deletes {
		comp := deletes[i].ComponentUUID
		rank := kindRank(deletes[i].Key.Kind)
		for _, a := range applies {
			if a.ComponentUUID == comp {
				deletes[i].DependsOn = append(deletes[i].DependsOn, a.ID)
			}
		}
		for j := range deletes {
			if deletes[j].ComponentUUID == comp && kindRank(deletes[j].Key.Kind) > rank {
				deletes[i].DependsOn = append(deletes[i].DependsOn, deletes[j].ID)
			}
		}
	}
}

// mergePatch returns the merge patch from the observed object, pruned to the
// fields the desired document sets, to the desired document.
func mergePatch(obs *api.ObservedResource, doc *api.Document) ([]byte, error) {
	if obs.Object == nil || doc.Object == nil {
		return nil, nil
	}
	original, err := json.Marshal(prune(obs.Object.Object, doc.Object.Object))
	if err != nil {
		return nil, err
	}
	modified, err := json.Marshal(doc.Object.Object)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreateMergePatch(original, modified)
}

// prune keeps the parts of observed that desired also sets. Lists and
// scalars are kept whole.
func prune(observed, desired map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(desired))
	for k, dv := range desired {
		ov, ok := observed[k]
		if !ok {
			continue
		}
		dm, dIsMap := dv.(map[string]interface{})
		om, oIsMap := ov.(map[string]interface{})
		if dIsMap && oIsMap {
			out[k] = prune(om, dm)
			continue
		}
		out[k] = ov
	}
	return out
}
