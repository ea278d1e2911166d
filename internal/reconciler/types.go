package reconciler

import (
	"context"
	"time"
)

// ResourceType identifies what a reconcile request refers to.
type ResourceType string

const (
	// ResourceTypeInstance is an instance file. Requests are named by
	// instance UUID.
	ResourceTypeInstance ResourceType = "Instance"

	// ResourceTypeTemplate is a template set. Requests are named by
	// component type and fan out to the instances using it.
	ResourceTypeTemplate ResourceType = "Template"
)

// ChangeEvent represents a detected change in a resource.
type ChangeEvent struct {
	Type      ResourceType
	Name      string
	Operation ChangeOperation
	Timestamp time.Time
	Source    ChangeSource

	// FilePath is the file that changed, for filesystem events.
	FilePath string
}

// ChangeOperation represents the type of change detected.
type ChangeOperation string

const (
	OperationCreate ChangeOperation = "Create"
	OperationUpdate ChangeOperation = "Update"
	OperationDelete ChangeOperation = "Delete"
)

// ChangeSource indicates where a change originated.
type ChangeSource string

const (
	// SourceFilesystem indicates the change came from filesystem watching.
	SourceFilesystem ChangeSource = "Filesystem"

	// SourceResync indicates a periodic or startup full resync.
	SourceResync ChangeSource = "Resync"

	// SourceManual indicates the change was triggered through TriggerReconcile.
	SourceManual ChangeSource = "Manual"
)

// ReconcileResult represents the outcome of a reconciliation attempt.
type ReconcileResult struct {
	// Requeue asks for another attempt with backoff without counting the
	// attempt as failed.
	Requeue bool

	// RequeueAfter requeues after a fixed delay instead of the backoff.
	RequeueAfter time.Duration

	// RunID is the sync run started by the attempt, if any.
	RunID string

	Error error
}

// ReconcileRequest identifies a resource to reconcile. It is the work queue
// item, so equal requests are coalesced while queued.
type ReconcileRequest struct {
	Type ResourceType
	Name string
}

func (r ReconcileRequest) String() string {
	return string(r.Type) + "/" + r.Name
}

// Reconciler reconciles one resource type. Reconcile must be idempotent.
type Reconciler interface {
	Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult
	GetResourceType() ResourceType
}

// Lister is implemented by reconcilers whose resources are enqueued on
// startup and on every resync.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// ChangeDetector is the interface for components that detect changes in resources.
type ChangeDetector interface {
	// Start begins watching and sends change events to changes until ctx is
	// done or Stop is called.
	Start(ctx context.Context, changes chan<- ChangeEvent) error
	Stop() error
	GetSource() ChangeSource
}

// ManagerConfig holds configuration for the Manager.
type ManagerConfig struct {
	// Watch enables filesystem watching of InstancesPath and TemplatesPath.
	Watch bool

	// InstancesPath holds one YAML file per instance, named by UUID.
	InstancesPath string

	// TemplatesPath holds template sets laid out as <type>/<version>/*.yaml.
	// Empty disables template watching.
	TemplatesPath string

	// WorkerCount is the number of concurrent reconciliation workers.
	// Defaults to 2.
	WorkerCount int

	// MaxRetries is the number of failed attempts after which a request is
	// dropped until its next change. Defaults to 5.
	MaxRetries int

	// InitialBackoff and MaxBackoff bound the per-request exponential
	// backoff. Default to 1s and 1m.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// DebounceInterval coalesces bursts of file events. Defaults to 500ms.
	DebounceInterval time.Duration

	// ResyncInterval enqueues every listed resource periodically. Zero
	// disables periodic resync.
	ResyncInterval time.Duration

	// ReconcileTimeout bounds a single Reconcile call. Defaults to 15m.
	ReconcileTimeout time.Duration
}

// ReconcileStatus is the last known reconciliation state of a resource.
type ReconcileStatus struct {
	ResourceType ResourceType
	Name         string

	// LastReconcileTime is when the resource was last successfully reconciled.
	LastReconcileTime *time.Time

	LastRunID  string
	LastError  string
	RetryCount int
	State      ReconcileState
}

// ReconcileState represents the state of a resource's reconciliation.
type ReconcileState string

const (
	// StatePending means the resource is queued, possibly waiting for a
	// lease held by another run.
	StatePending ReconcileState = "Pending"

	StateReconciling ReconcileState = "Reconciling"
	StateSynced      ReconcileState = "Synced"

	// StateError means reconciliation failed and will be retried.
	StateError ReconcileState = "Error"

	// StateFailed means reconciliation failed MaxRetries times and waits for
	// the next change or resync.
	StateFailed ReconcileState = "Failed"
)
