package applier

import (
	"context"
	"encoding/json"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"

	"shipyard/internal/api"
)

// FieldManager is the server-side apply field manager used for every write.
const FieldManager = "shipyard"

var namespaceGVR = schema.GroupVersionResource{Version: "v1", Resource: "namespaces"}

// resettable is implemented by mappers that cache discovery.
type resettable interface {
	Reset()
}

// DynamicClient implements api.ClusterClient on top of the dynamic client.
// Writes are server-side applies with a fixed field manager.
type DynamicClient struct {
	dynamic      dynamic.Interface
	mapper       meta.RESTMapper
	fieldManager string
}

// NewDynamicClient creates a client from its parts. An empty fieldManager
// selects FieldManager.
func NewDynamicClient(dyn dynamic.Interface, mapper meta.RESTMapper, fieldManager string) *DynamicClient {
	if fieldManager == "" {
		fieldManager = FieldManager
	}
	return &DynamicClient{dynamic: dyn, mapper: mapper, fieldManager: fieldManager}
}

// NewDynamicClientForConfig creates a client for a REST config, with a
// discovery-backed REST mapper that is refreshed when a kind is unknown.
func NewDynamicClientForConfig(cfg *rest.Config, fieldManager string) (*DynamicClient, error) {
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	disc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(disc))
	return NewDynamicClient(dyn, mapper, fieldManager), nil
}

func (c *DynamicClient) resource(gvk schema.GroupVersionKind, namespace string) (dynamic.ResourceInterface, error) {
	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if meta.IsNoMatchError(err) {
		if r, ok := c.mapper.(resettable); ok {
			r.Reset()
			mapping, err = c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		}
	}
	if err != nil {
		return nil, err
	}
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		return c.dynamic.Resource(mapping.Resource).Namespace(namespace), nil
	}
	return c.dynamic.Resource(mapping.Resource), nil
}

// Get implements api.ClusterClient.
func (c *DynamicClient) Get(ctx context.Context, gvk schema.GroupVersionKind, key api.ResourceKey) (*unstructured.Unstructured, error) {
	ri, err := c.resource(gvk, key.Namespace)
	if err != nil {
		return nil, err
	}
	return ri.Get(ctx, key.Name, metav1.GetOptions{})
}

// List implements api.ClusterClient.
func (c *DynamicClient) List(ctx context.Context, gvk schema.GroupVersionKind, namespace, labelSelector string) ([]unstructured.Unstructured, error) {
	ri, err := c.resource(gvk, namespace)
	if err != nil {
		return nil, err
	}
	list, err := ri.List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// Apply implements api.ClusterClient. Conflicts with other field managers are
// forced: the instance owns every field it renders.
func (c *DynamicClient) Apply(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	ri, err := c.resource(obj.GroupVersionKind(), obj.GetNamespace())
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(obj.Object)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", api.KeyOf(obj), err)
	}
	force := true
	return ri.Patch(ctx, obj.GetName(), types.ApplyPatchType, data, metav1.PatchOptions{
		FieldManager: c.fieldManager,
		Force:        &force,
	})
}

// Delete implements api.ClusterClient. Dependents are collected in the
// background.
func (c *DynamicClient) Delete(ctx context.Context, gvk schema.GroupVersionKind, key api.ResourceKey) error {
	ri, err := c.resource(gvk, key.Namespace)
	if err != nil {
		return err
	}
	policy := metav1.DeletePropagationBackground
	return ri.Delete(ctx, key.Name, metav1.DeleteOptions{PropagationPolicy: &policy})
}

// EnsureNamespace implements api.ClusterClient.
func (c *DynamicClient) EnsureNamespace(ctx context.Context, name string) (bool, error) {
	namespaces := c.dynamic.Resource(namespaceGVR)
	_, err := namespaces.Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		return false, nil
	}
	if !apierrors.IsNotFound(err) {
		return false, err
	}

	ns := &unstructured.Unstructured{}
	ns.SetAPIVersion("v1")
	ns.SetKind("Namespace")
	ns.SetName(name)
	ns.SetLabels(map[string]string{api.LabelManagedBy: api.ManagedByValue})
	_, err = namespaces.Create(ctx, ns, metav1.CreateOptions{FieldManager: c.fieldManager})
	if apierrors.IsAlreadyExists(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
