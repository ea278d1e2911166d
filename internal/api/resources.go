package api

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// ResourceKey identifies a cluster object. Kinds are compared verbatim.
type ResourceKey struct {
	Kind      string `json:"kind" yaml:"kind"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
}

// String returns Kind/namespace/name.
func (k ResourceKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.Namespace, k.Name)
}

// KeyOf builds the ResourceKey of an object.
func KeyOf(obj *unstructured.Unstructured) ResourceKey {
	return ResourceKey{Kind: obj.GetKind(), Namespace: obj.GetNamespace(), Name: obj.GetName()}
}

// Ownership is the parsed ownership marker of a cluster object.
type Ownership struct {
	InstanceUUID  string `json:"instance"`
	ComponentUUID string `json:"component"`
}

// OwnershipOf returns the ownership marker of an object. The marker is
// present only if the managed-by label matches, the instance and component
// labels are set, and the owner annotation agrees with both labels. Anything
// else is treated as foreign.
func OwnershipOf(obj *unstructured.Unstructured) (*Ownership, bool) {
	labels := obj.GetLabels()
	if labels[LabelManagedBy] != ManagedByValue {
		return nil, false
	}
	inst, comp := labels[LabelInstance], labels[LabelComponent]
	if inst == "" || comp == "" {
		return nil, false
	}
	if obj.GetAnnotations()[AnnotationOwner] != OwnerValue(inst, comp) {
		return nil, false
	}
	return &Ownership{InstanceUUID: inst, ComponentUUID: comp}, true
}

// OwnerValue formats the owner annotation value.
func OwnerValue(instanceUUID, componentUUID string) string {
	return instanceUUID + "/" + componentUUID
}

// ParseOwnerValue is the inverse of OwnerValue.
func ParseOwnerValue(v string) (Ownership, bool) {
	inst, comp, ok := strings.Cut(v, "/")
	if !ok || inst == "" || comp == "" {
		return Ownership{}, false
	}
	return Ownership{InstanceUUID: inst, ComponentUUID: comp}, true
}

// Document is one rendered desired-state object.
type Document struct {
	Key           ResourceKey                `json:"key"`
	APIVersion    string                     `json:"apiVersion"`
	ComponentUUID string                     `json:"component"`
	Template      string                     `json:"template,omitempty"`
	Digest        string                     `json:"digest"`
	Object        *unstructured.Unstructured `json:"-"`

	// Order is the position of the document in its component's render output.
	Order int `json:"order"`
}

// GroupVersionKind returns the GVK of the document.
func (d Document) GroupVersionKind() schema.GroupVersionKind {
	return schema.FromAPIVersionAndKind(d.APIVersion, d.Key.Kind)
}

// ObservedResource is a cluster object as read back from the cluster. Owner
// is nil for objects without a valid ownership marker.
type ObservedResource struct {
	Key        ResourceKey                `json:"key"`
	APIVersion string                     `json:"apiVersion"`
	Owner      *Ownership                 `json:"owner,omitempty"`
	Digest     string                     `json:"digest,omitempty"`
	Object     *unstructured.Unstructured `json:"-"`
}

// Observe converts a cluster object into an ObservedResource.
func Observe(obj *unstructured.Unstructured) ObservedResource {
	owner, _ := OwnershipOf(obj)
	return ObservedResource{
		Key:        KeyOf(obj),
		APIVersion: obj.GetAPIVersion(),
		Owner:      owner,
		Digest:     obj.GetAnnotations()[AnnotationDigest],
		Object:     obj,
	}
}

// OwnedBy reports whether the resource carries the ownership marker of the
// given instance.
func (r ObservedResource) OwnedBy(instanceUUID string) bool {
	return r.Owner != nil && r.Owner.InstanceUUID == instanceUUID
}

// GroupVersionKind returns the GVK of the resource.
func (r ObservedResource) GroupVersionKind() schema.GroupVersionKind {
	return schema.FromAPIVersionAndKind(r.APIVersion, r.Key.Kind)
}

// InventoryEntry is one applied resource recorded in the inventory.
type InventoryEntry struct {
	Key        ResourceKey `json:"key" yaml:"key"`
	APIVersion string      `json:"apiVersion" yaml:"apiVersion"`
	Digest     string      `json:"digest" yaml:"digest"`
}

// GroupVersionKind returns the GVK of the entry.
func (e InventoryEntry) GroupVersionKind() schema.GroupVersionKind {
	return schema.FromAPIVersionAndKind(e.APIVersion, e.Key.Kind)
}

// Inventory is the persisted ownership record of an Instance: for every
// Component, the resources last applied for it.
type Inventory struct {
	InstanceUUID string                      `json:"instance" yaml:"instance"`
	Components   map[string][]InventoryEntry `json:"components" yaml:"components"`
}

// NewInventory returns an empty inventory for the instance.
func NewInventory(instanceUUID string) *Inventory {
	return &Inventory{InstanceUUID: instanceUUID, Components: map[string][]InventoryEntry{}}
}

// Entries returns every entry across components.
func (inv *Inventory) Entries() []InventoryEntry {
	if inv == nil {
		return nil
	}
	var out []InventoryEntry
	for _, entries := range inv.Components {
		out = append(out, entries...)
	}
	return out
}

// Clone returns a deep copy.
func (inv *Inventory) Clone() *Inventory {
	if inv == nil {
		return nil
	}
	out := NewInventory(inv.InstanceUUID)
	for uuid, entries := range inv.Components {
		out.Components[uuid] = append([]InventoryEntry(nil), entries...)
	}
	return out
}
