package api

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// InstanceStore gives the engine read access to Instances and read/write
// access to their ownership inventory.
type InstanceStore interface {
	// GetInstance returns the Instance with its Components, or a NotFoundError.
	GetInstance(ctx context.Context, instanceUUID string) (*Instance, error)
	// ListInstances returns every known Instance.
	ListInstances(ctx context.Context) ([]Instance, error)
	// GetInventory returns the persisted inventory. An Instance that was
	// never synced yields an empty inventory, not an error.
	GetInventory(ctx context.Context, instanceUUID string) (*Inventory, error)
	// SaveInventory replaces the inventory of inv.InstanceUUID.
	SaveInventory(ctx context.Context, inv *Inventory) error
}

// SyncRunStore persists SyncRun records.
type SyncRunStore interface {
	SaveRun(ctx context.Context, run *SyncRun) error
	GetRun(ctx context.Context, runID string) (*SyncRun, error)
	// ListRuns returns the runs of one instance, newest first. An empty
	// instanceUUID lists every run.
	ListRuns(ctx context.Context, instanceUUID string) ([]*SyncRun, error)
}

// TemplateEngine selects the Renderer of a TemplateDocument.
type TemplateEngine string

const (
	// TemplateEngineGo renders with text/template and the sprig function map.
	TemplateEngineGo TemplateEngine = "gotemplate"
	// TemplateEnginePlaceholder substitutes {{ .path }} placeholders only.
	TemplateEnginePlaceholder TemplateEngine = "placeholder"
)

// VariableSpec declares one template variable.
type VariableSpec struct {
	Name        string      `yaml:"name" json:"name"`
	Required    bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
}

// TemplateDocument is one versioned manifest template for a component type.
// A component type may have several, rendered in ascending RenderOrder.
type TemplateDocument struct {
	Name          string         `yaml:"name" json:"name"`
	Version       string         `yaml:"version" json:"version"`
	ComponentType ComponentType  `yaml:"componentType" json:"componentType"`
	RenderOrder   int            `yaml:"renderOrder,omitempty" json:"renderOrder,omitempty"`
	Enabled       *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Engine        TemplateEngine `yaml:"engine,omitempty" json:"engine,omitempty"`
	Variables     []VariableSpec `yaml:"variables,omitempty" json:"variables,omitempty"`
	Content       string         `yaml:"content" json:"content"`
}

// IsEnabled reports whether the template takes part in rendering. Templates
// are enabled unless explicitly disabled.
func (t TemplateDocument) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// TemplateStore resolves the template set for a component type and version.
type TemplateStore interface {
	// TemplatesFor returns every template of the set. An empty version
	// selects the latest one. A NotFoundError is returned when the set does
	// not exist.
	TemplatesFor(ctx context.Context, componentType ComponentType, version string) ([]TemplateDocument, error)
}

// ClusterClient is the cluster API as seen by the engine. Objects are keyed
// by (kind, namespace, name); the GVK carries the group and version needed
// to reach the right endpoint. Errors follow k8s.io/apimachinery/pkg/api/errors
// so callers can classify them.
type ClusterClient interface {
	Get(ctx context.Context, gvk schema.GroupVersionKind, key ResourceKey) (*unstructured.Unstructured, error)
	// List returns the objects of one kind in a namespace matching the label
	// selector. A kind the cluster does not serve yields a meta.NoKindMatchError.
	List(ctx context.Context, gvk schema.GroupVersionKind, namespace, labelSelector string) ([]unstructured.Unstructured, error)
	// Apply performs a server-side apply of obj and returns the live object.
	Apply(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
	Delete(ctx context.Context, gvk schema.GroupVersionKind, key ResourceKey) error
	// EnsureNamespace creates the namespace if it does not exist.
	EnsureNamespace(ctx context.Context, name string) (created bool, err error)
}

// ClusterTarget is a resolved cluster for one Environment. Gateway is read at
// resolution time and must not be reused across syncs.
type ClusterTarget struct {
	Name    string
	Client  ClusterClient
	Gateway ClusterGatewayConfig
}

// ClusterRegistry resolves the cluster an Environment deploys to.
type ClusterRegistry interface {
	ClusterFor(ctx context.Context, env Environment) (*ClusterTarget, error)
}

// PlannedAction is a plan action as exposed outside the engine.
type PlannedAction struct {
	ID            string      `json:"id"`
	Verb          ActionVerb  `json:"verb"`
	Key           ResourceKey `json:"key"`
	APIVersion    string      `json:"apiVersion,omitempty"`
	ComponentUUID string      `json:"component,omitempty"`
	DependsOn     []string    `json:"dependsOn,omitempty"`
	// Patch is the JSON merge patch an update would send, for display.
	Patch string `json:"patch,omitempty"`
}

// PlanPreview is the result of a dry-run: what a sync would do right now.
type PlanPreview struct {
	InstanceUUID string             `json:"instance"`
	Cluster      string             `json:"cluster"`
	Actions      []PlannedAction    `json:"actions"`
	Unchanged    []ResourceKey      `json:"unchanged,omitempty"`
	Components   []ComponentOutcome `json:"components"`
}

// SyncService is the engine surface used by the transports.
type SyncService interface {
	StartSync(ctx context.Context, instanceUUID string) (string, error)
	GetSyncStatus(ctx context.Context, runID string) (*SyncRun, error)
	ListSyncRuns(ctx context.Context, instanceUUID string) ([]*SyncRun, error)
	CancelSync(ctx context.Context, runID string) error
	// Wait blocks until the run is terminal or ctx is done.
	Wait(ctx context.Context, runID string) (*SyncRun, error)
	Plan(ctx context.Context, instanceUUID string) (*PlanPreview, error)
}
