package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds as reported in SyncRun.ErrorKind and ComponentOutcome.ErrorKind.
const (
	ErrorKindRender     = "RenderError"
	ErrorKindCapability = "CapabilityError"
	ErrorKindPlan       = "PlanError"
	ErrorKindApply      = "ApplyError"
	ErrorKindLock       = "LockError"
	ErrorKindDeadline   = "DeadlineExceeded"
	ErrorKindInternal   = "InternalError"
)

// NotFoundError represents a resource not found error with contextual information.
// It is returned by the stores for unknown instances, inventories, templates
// and sync runs.
type NotFoundError struct {
	// ResourceType categorizes the missing resource (e.g., "instance", "syncrun", "template")
	ResourceType string

	// ResourceName is the identifier that was looked up
	ResourceName string

	// Message provides a custom error message if the default format is insufficient
	Message string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// IsNotFound checks if an error is a NotFoundError using error unwrapping.
//
// Example:
//
//	inst, err := store.GetInstance(ctx, id)
//	if api.IsNotFound(err) {
//	    return nil, fmt.Errorf("instance %s does not exist", id)
//	}
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// NewNotFoundError creates a new NotFoundError with the specified resource type and name.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceName: resourceName}
}

// RenderError reports that a component's template or settings could not be
// resolved. It is scoped to one Component and never accompanied by partial
// output.
type RenderError struct {
	ComponentName string
	Template      string

	// MissingVariables lists referenced variables with neither a value nor a default.
	MissingVariables []string

	Reason string
	Err    error
}

func (e *RenderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "render component %q", e.ComponentName)
	if e.Template != "" {
		fmt.Fprintf(&b, " (template %s)", e.Template)
	}
	b.WriteString(": ")
	switch {
	case len(e.MissingVariables) > 0:
		fmt.Fprintf(&b, "missing variables: %s", strings.Join(e.MissingVariables, ", "))
	case e.Reason != "":
		b.WriteString(e.Reason)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	}
	if e.Err != nil && (len(e.MissingVariables) > 0 || e.Reason != "") {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RenderError) Unwrap() error { return e.Err }

// CapabilityError reports that the requested visibility is not usable on the
// target cluster. It is a warning: the component is deployed with cluster
// visibility instead.
type CapabilityError struct {
	ComponentName string
	Requested     Visibility
	RouteKind     string
	Reason        string
}

func (e *CapabilityError) Error() string {
	if e.RouteKind != "" {
		return fmt.Sprintf("component %q: %s visibility unavailable (%s): downgraded to cluster", e.ComponentName, e.Requested, e.Reason)
	}
	return fmt.Sprintf("component %q: %s visibility unavailable: %s", e.ComponentName, e.Requested, e.Reason)
}

// PlanError reports that no safe plan can be computed for an Instance. The
// run is aborted before any mutation.
type PlanError struct {
	InstanceUUID string
	Key          *ResourceKey
	Reason       string
	Err          error
}

func (e *PlanError) Error() string {
	msg := fmt.Sprintf("plan instance %s", e.InstanceUUID)
	if e.Key != nil {
		msg += fmt.Sprintf(" resource %s", e.Key)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlanError) Unwrap() error { return e.Err }

// ApplyError reports a failed cluster call for one action.
type ApplyError struct {
	Verb      ActionVerb
	Key       ResourceKey
	Attempts  int
	Transient bool
	Err       error
}

func (e *ApplyError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	return fmt.Sprintf("%s %s failed after %d attempt(s) (%s): %v", e.Verb, e.Key, e.Attempts, class, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// LockError reports that another SyncRun holds the Instance lease. No state
// was changed.
type LockError struct {
	InstanceUUID string
	Holder       string
	ExpiresAt    time.Time
}

func (e *LockError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("instance %s is locked by %s", e.InstanceUUID, e.Holder)
	}
	return fmt.Sprintf("instance %s is locked by another sync", e.InstanceUUID)
}

// IsLockError reports whether err is or wraps a LockError.
func IsLockError(err error) bool {
	var lockErr *LockError
	return errors.As(err, &lockErr)
}

// ErrorKind maps an error onto its taxonomy name.
func ErrorKind(err error) string {
	var (
		renderErr     *RenderError
		capabilityErr *CapabilityError
		planErr       *PlanError
		applyErr      *ApplyError
		lockErr       *LockError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &renderErr):
		return ErrorKindRender
	case errors.As(err, &capabilityErr):
		return ErrorKindCapability
	case errors.As(err, &planErr):
		return ErrorKindPlan
	case errors.As(err, &applyErr):
		return ErrorKindApply
	case errors.As(err, &lockErr):
		return ErrorKindLock
	}
	return ErrorKindInternal
}
