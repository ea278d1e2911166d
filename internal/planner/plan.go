package planner

import (
	"fmt"

	"shipyard/internal/api"
	"shipyard/internal/dependency"
)

// Action is one cluster mutation of a plan.
type Action struct {
	ID            string
	Verb          api.ActionVerb
	Key           api.ResourceKey
	APIVersion    string
	ComponentUUID string

	// Desired is set for create and update.
	Desired *api.Document
	// Observed is set for update and delete.
	Observed *api.ObservedResource

	// DependsOn lists action IDs that must succeed first.
	DependsOn []string

	// Patch is the JSON merge patch from the observed platform-set fields to
	// the desired document. Only computed for updates, for display.
	Patch []byte
}

// Mutating reports whether the action writes to the cluster state the
// engine owns. The namespace action is shared infrastructure.
func (a Action) Mutating() bool {
	return a.Verb != api.ActionEnsureNamespace
}

// Plan is the ordered set of actions that moves an instance from its
// observed state to its desired state. Building a plan never touches the
// cluster.
type Plan struct {
	InstanceUUID string
	Namespace    string

	// Actions are ordered: namespace first, then creates and updates by kind
	// rank, then deletes by reverse kind rank.
	Actions []Action

	// Unchanged lists desired resources whose digest already matches.
	Unchanged []api.ResourceKey
}

// Summary counts the plan's actions by verb.
func (p *Plan) Summary() api.PlanSummary {
	s := api.PlanSummary{Unchanged: len(p.Unchanged)}
	for _, a := range p.Actions {
		switch a.Verb {
		case api.ActionCreate:
			s.Creates++
		case api.ActionUpdate:
			s.Updates++
		case api.ActionDelete:
			s.Deletes++
		}
	}
	return s
}

// Empty reports whether the plan has no mutating action.
func (p *Plan) Empty() bool {
	for _, a := range p.Actions {
		if a.Mutating() {
			return false
		}
	}
	return true
}

// Action returns the action with the given ID.
func (p *Plan) Action(id string) (*Action, bool) {
	for i := range p.Actions {
		if p.Actions[i].ID == id {
			return &p.Actions[i], true
		}
	}
	return nil, false
}

// Graph returns the dependency graph of the plan's actions.
func (p *Plan) Graph() *dependency.Graph {
	g := dependency.New()
	for _, a := range p.Actions {
		deps := make([]dependency.NodeID, 0, len(a.DependsOn))
		for _, d := range a.DependsOn {
			deps = append(deps, dependency.NodeID(d))
		}
		g.AddNode(dependency.Node{
			ID:           dependency.NodeID(a.ID),
			FriendlyName: fmt.Sprintf("%s %s", a.Verb, a.Key),
			Kind:         nodeKind(a.Verb),
			DependsOn:    deps,
		})
	}
	return g
}

func nodeKind(verb api.ActionVerb) dependency.NodeKind {
	switch verb {
	case api.ActionCreate, api.ActionUpdate:
		return dependency.KindApply
	case api.ActionDelete:
		return dependency.KindDelete
	case api.ActionEnsureNamespace:
		return dependency.KindNamespace
	}
	return dependency.KindUnknown
}

// Preview converts the plan into its externally visible form.
func (p *Plan) Preview() []api.PlannedAction {
	out := make([]api.PlannedAction, 0, len(p.Actions))
	for _, a := range p.Actions {
		out = append(out, api.PlannedAction{
			ID:            a.ID,
			Verb:          a.Verb,
			Key:           a.Key,
			APIVersion:    a.APIVersion,
			ComponentUUID: a.ComponentUUID,
			DependsOn:     append([]string(nil), a.DependsOn...),
			Patch:         string(a.Patch),
		})
	}
	return out
}

// ActionID returns the deterministic ID of an action.
func ActionID(verb api.ActionVerb, key api.ResourceKey) string {
	return string(verb) + ":" + key.String()
}

// NamespaceActionID returns the ID of the namespace action.
func NamespaceActionID(namespace string) string {
	return string(api.ActionEnsureNamespace) + ":" + namespace
}
