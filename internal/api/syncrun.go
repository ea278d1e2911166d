package api

import "time"

// SyncStatus is the state of a SyncRun.
type SyncStatus string

const (
	SyncStatusPending         SyncStatus = "Pending"
	SyncStatusRendering       SyncStatus = "Rendering"
	SyncStatusPlanning        SyncStatus = "Planning"
	SyncStatusApplying        SyncStatus = "Applying"
	SyncStatusSucceeded       SyncStatus = "Succeeded"
	SyncStatusPartiallyFailed SyncStatus = "PartiallyFailed"
	SyncStatusFailed          SyncStatus = "Failed"
)

// Terminal reports whether s is a final state.
func (s SyncStatus) Terminal() bool {
	switch s {
	case SyncStatusSucceeded, SyncStatusPartiallyFailed, SyncStatusFailed:
		return true
	}
	return false
}

// ComponentStatus is the outcome of one Component within a SyncRun.
type ComponentStatus string

const (
	ComponentStatusPending   ComponentStatus = "Pending"
	ComponentStatusSucceeded ComponentStatus = "Succeeded"
	ComponentStatusFailed    ComponentStatus = "Failed"
	// ComponentStatusDisabled is reported for disabled components; it does not
	// count as a success or a failure.
	ComponentStatusDisabled ComponentStatus = "Disabled"
)

// ActionVerb is the kind of mutation in a plan.
type ActionVerb string

const (
	ActionCreate ActionVerb = "create"
	ActionUpdate ActionVerb = "update"
	ActionDelete ActionVerb = "delete"
	// ActionEnsureNamespace creates the target namespace if it is absent.
	ActionEnsureNamespace ActionVerb = "ensure-namespace"
)

// ActionOutcome is the result of one executed action.
type ActionOutcome string

const (
	OutcomeApplied ActionOutcome = "Applied"
	OutcomeFailed  ActionOutcome = "Failed"
	OutcomeSkipped ActionOutcome = "Skipped"
)

// SkipReasonDependencyFailed is the reason recorded on actions skipped
// because something they depend on did not apply.
const SkipReasonDependencyFailed = "skipped: dependency failed"

// SkipReasonDeadline is the reason recorded on actions that never started
// because the run was cancelled or its deadline expired.
const SkipReasonDeadline = "skipped: run deadline exceeded"

// ActionResult records one executed (or skipped) plan action.
type ActionResult struct {
	ActionID      string        `json:"id" yaml:"id"`
	Verb          ActionVerb    `json:"verb" yaml:"verb"`
	Key           ResourceKey   `json:"key" yaml:"key"`
	APIVersion    string        `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	ComponentUUID string        `json:"component,omitempty" yaml:"component,omitempty"`
	Outcome       ActionOutcome `json:"outcome" yaml:"outcome"`
	Attempts      int           `json:"attempts" yaml:"attempts"`
	Digest        string        `json:"digest,omitempty" yaml:"digest,omitempty"`
	Error         string        `json:"error,omitempty" yaml:"error,omitempty"`
	Reason        string        `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ComponentOutcome is the per-Component section of a SyncRun.
type ComponentOutcome struct {
	UUID                string          `json:"uuid" yaml:"uuid"`
	Name                string          `json:"name" yaml:"name"`
	Type                ComponentType   `json:"type" yaml:"type"`
	Status              ComponentStatus `json:"status" yaml:"status"`
	RequestedVisibility Visibility      `json:"requestedVisibility,omitempty" yaml:"requestedVisibility,omitempty"`
	EffectiveVisibility Visibility      `json:"effectiveVisibility,omitempty" yaml:"effectiveVisibility,omitempty"`
	RouteKind           string          `json:"routeKind,omitempty" yaml:"routeKind,omitempty"`
	AppliedResources    []ResourceKey   `json:"appliedResources,omitempty" yaml:"appliedResources,omitempty"`
	Actions             []ActionResult  `json:"actions,omitempty" yaml:"actions,omitempty"`
	Warnings            []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error               string          `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind           string          `json:"errorKind,omitempty" yaml:"errorKind,omitempty"`
}

// Downgraded reports whether the requested visibility was not honored.
func (o ComponentOutcome) Downgraded() bool {
	return o.RequestedVisibility != "" && o.EffectiveVisibility != "" && o.RequestedVisibility != o.EffectiveVisibility
}

// PlanSummary counts the actions of the plan a run executed.
type PlanSummary struct {
	Creates   int `json:"creates" yaml:"creates"`
	Updates   int `json:"updates" yaml:"updates"`
	Deletes   int `json:"deletes" yaml:"deletes"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
}

// SyncRun is one execution of the engine for one Instance.
type SyncRun struct {
	ID           string     `json:"id" yaml:"id"`
	InstanceUUID string     `json:"instance" yaml:"instance"`
	Status       SyncStatus `json:"status" yaml:"status"`
	StartedAt    time.Time  `json:"startedAt" yaml:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`

	// Components is ordered as the Instance declares them.
	Components []ComponentOutcome `json:"components" yaml:"components"`

	// Actions holds results not attributable to one component, such as the
	// namespace action.
	Actions []ActionResult `json:"actions,omitempty" yaml:"actions,omitempty"`

	Plan      *PlanSummary `json:"plan,omitempty" yaml:"plan,omitempty"`
	Error     string       `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind string       `json:"errorKind,omitempty" yaml:"errorKind,omitempty"`
}

// Duration returns the run duration, or zero while it is active.
func (r *SyncRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Component returns the outcome for a component name.
func (r *SyncRun) Component(name string) (*ComponentOutcome, bool) {
	for i := range r.Components {
		if r.Components[i].Name == name {
			return &r.Components[i], true
		}
	}
	return nil, false
}

// DeepCopy returns an independent copy of the run.
func (r *SyncRun) DeepCopy() *SyncRun {
	if r == nil {
		return nil
	}
	out := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.Plan != nil {
		p := *r.Plan
		out.Plan = &p
	}
	out.Actions = append([]ActionResult(nil), r.Actions...)
	out.Components = make([]ComponentOutcome, len(r.Components))
	for i, c := range r.Components {
		c.AppliedResources = append([]ResourceKey(nil), c.AppliedResources...)
		c.Actions = append([]ActionResult(nil), c.Actions...)
		c.Warnings = append([]string(nil), c.Warnings...)
		out.Components[i] = c
	}
	return &out
}
