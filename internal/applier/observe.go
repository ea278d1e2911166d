package applier

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"shipyard/internal/api"
	"shipyard/internal/planner"
	"shipyard/pkg/logging"
)

// ManagedKinds are the kinds listed on every observation, so that objects
// left behind by components or templates that no longer exist are found
// even when the inventory is lost.
var ManagedKinds = func() []schema.GroupVersionKind {
	out := make([]schema.GroupVersionKind, 0, len(planner.KnownKinds))
	for _, k := range planner.KnownKinds {
		out = append(out, k.GVK)
	}
	return out
}()

// InstanceSelector returns the label selector matching the objects of an
// instance.
func InstanceSelector(instanceUUID string) string {
	return labels.SelectorFromSet(labels.Set{
		api.LabelManagedBy: api.ManagedByValue,
		api.LabelInstance:  instanceUUID,
	}).String()
}

// Observe reads the current cluster state relevant to a plan: every object
// labelled with the instance, every object at a desired key, and every
// object in the inventory. Kinds the cluster does not serve are skipped.
func Observe(ctx context.Context, client api.ClusterClient, instanceUUID, namespace string, desired []api.Document, inventory *api.Inventory) ([]api.ObservedResource, error) {
	kinds := make([]schema.GroupVersionKind, 0, len(ManagedKinds))
	seenKind := make(map[schema.GroupKind]bool)
	addKind := func(gvk schema.GroupVersionKind) {
		if gvk.Kind == "" || seenKind[gvk.GroupKind()] {
			return
		}
		seenKind[gvk.GroupKind()] = true
		kinds = append(kinds, gvk)
	}
	for _, d := range desired {
		addKind(d.GroupVersionKind())
	}
	var entries []api.InventoryEntry
	if inventory != nil {
		entries = inventory.Entries()
	}
	for _, e := range entries {
		addKind(e.GroupVersionKind())
	}
	for _, gvk := range ManagedKinds {
		addKind(gvk)
	}

	var observed []api.ObservedResource
	seen := make(map[api.ResourceKey]bool)
	selector := InstanceSelector(instanceUUID)

	for _, gvk := range kinds {
		items, err := client.List(ctx, gvk, namespace, selector)
		if meta.IsNoMatchError(err) {
			logging.Debug(api.SubsystemApplier, "Kind %s is not served by the cluster, skipping", gvk)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s in %s: %w", gvk.Kind, namespace, err)
		}
		for i := range items {
			o := api.Observe(&items[i])
			if seen[o.Key] {
				continue
			}
			seen[o.Key] = true
			observed = append(observed, o)
		}
	}

	// Objects at desired or inventoried keys that lost their labels are
	// still found; without ownership they are only collision evidence.
	lookup := func(gvk schema.GroupVersionKind, key api.ResourceKey) error {
		if seen[key] {
			return nil
		}
		seen[key] = true
		obj, err := client.Get(ctx, gvk, key)
		if apierrors.IsNotFound(err) || meta.IsNoMatchError(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get %s: %w", key, err)
		}
		observed = append(observed, api.Observe(obj))
		return nil
	}
	for _, d := range desired {
		if err := lookup(d.GroupVersionKind(), d.Key); err != nil {
			return nil, err
		}
	}
	for _, e := range entries {
		if err := lookup(e.GroupVersionKind(), e.Key); err != nil {
			return nil, err
		}
	}

	logging.Debug(api.SubsystemApplier, "Observed %d object(s) for instance %s in %s", len(observed), instanceUUID, namespace)
	return observed, nil
}
