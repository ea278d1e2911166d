package mock

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"shipyard/internal/api"
)

// Verbs recorded by Cluster.
const (
	VerbGet             = "get"
	VerbList            = "list"
	VerbApply           = "apply"
	VerbDelete          = "delete"
	VerbEnsureNamespace = "ensure-namespace"
)

// Call is one recorded cluster call.
type Call struct {
	Verb string
	Key  api.ResourceKey
}

// failure is an injected error.
type failure struct {
	verb  string
	key   api.ResourceKey
	err   error
	times int
}

// Cluster is an in-memory api.ClusterClient. Namespaced objects can only be
// applied into namespaces that exist, like on a real API server.
type Cluster struct {
	mu         sync.Mutex
	objects    map[api.ResourceKey]*unstructured.Unstructured
	namespaces map[string]bool
	unserved   map[schema.GroupKind]bool
	failures   []*failure
	calls      []Call
	revision   int

	inFlight    int
	maxInFlight int

	// BeforeCall, when set, runs before every mutating call without the
	// cluster lock held. Tests use it to block or slow down calls.
	BeforeCall func(ctx context.Context, verb string, key api.ResourceKey)
}

// NewCluster returns an empty cluster.
func NewCluster() *Cluster {
	return &Cluster{
		objects:    map[api.ResourceKey]*unstructured.Unstructured{},
		namespaces: map[string]bool{},
		unserved:   map[schema.GroupKind]bool{},
	}
}

// Seed stores objects as if someone else had created them.
func (c *Cluster) Seed(objs ...*unstructured.Unstructured) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, obj := range objs {
		if ns := obj.GetNamespace(); ns != "" {
			c.namespaces[ns] = true
		}
		c.objects[api.KeyOf(obj)] = obj.DeepCopy()
	}
}

// AddNamespace marks a namespace as existing.
func (c *Cluster) AddNamespace(name string) {
	c.mu.Lock()
	c.namespaces[name] = true
	c.mu.Unlock()
}

// HasNamespace reports whether the namespace exists.
func (c *Cluster) HasNamespace(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.namespaces[name]
}

// Unserve makes the cluster answer NoKindMatch for a kind.
func (c *Cluster) Unserve(group, kind string) {
	c.mu.Lock()
	c.unserved[schema.GroupKind{Group: group, Kind: kind}] = true
	c.mu.Unlock()
}

// FailOn injects err for the next times calls of verb on key. A negative
// times fails forever.
func (c *Cluster) FailOn(verb string, key api.ResourceKey, err error, times int) {
	c.mu.Lock()
	c.failures = append(c.failures, &failure{verb: verb, key: key, err: err, times: times})
	c.mu.Unlock()
}

// Object returns a copy of the stored object at key.
func (c *Cluster) Object(key api.ResourceKey) (*unstructured.Unstructured, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[key]
	if !ok {
		return nil, false
	}
	return obj.DeepCopy(), true
}

// Keys returns the keys of every stored object, sorted.
func (c *Cluster) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys
}

// Calls returns the recorded calls.
func (c *Cluster) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// MutatingCalls returns the recorded apply, delete and namespace calls.
func (c *Cluster) MutatingCalls() []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Verb != VerbGet && call.Verb != VerbList {
			out = append(out, call)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (c *Cluster) ResetCalls() {
	c.mu.Lock()
	c.calls = nil
	c.mu.Unlock()
}

// MaxInFlight returns the highest number of concurrent mutating calls seen.
func (c *Cluster) MaxInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxInFlight
}

// begin records a call and returns an injected failure, if any. Must be
// called with the lock held.
func (c *Cluster) begin(verb string, key api.ResourceKey) error {
	c.calls = append(c.calls, Call{Verb: verb, Key: key})
	for _, f := range c.failures {
		if f.verb != verb || f.key != key || f.times == 0 {
			continue
		}
		if f.times > 0 {
			f.times--
		}
		return f.err
	}
	return nil
}

func (c *Cluster) mutate(ctx context.Context, verb string, key api.ResourceKey, fn func() error) error {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	if c.BeforeCall != nil {
		c.BeforeCall(ctx, verb, key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(verb, key); err != nil {
		return err
	}
	return fn()
}

func (c *Cluster) checkServed(gvk schema.GroupVersionKind) error {
	if c.unserved[gvk.GroupKind()] {
		return &meta.NoKindMatchError{GroupKind: gvk.GroupKind(), SearchedVersions: []string{gvk.Version}}
	}
	return nil
}

func resourceFor(gvk schema.GroupVersionKind) schema.GroupResource {
	return schema.GroupResource{Group: gvk.Group, Resource: gvk.Kind}
}

// Get implements api.ClusterClient.
func (c *Cluster) Get(ctx context.Context, gvk schema.GroupVersionKind, key api.ResourceKey) (*unstructured.Unstructured, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkServed(gvk); err != nil {
		return nil, err
	}
	if err := c.begin(VerbGet, key); err != nil {
		return nil, err
	}
	obj, ok := c.objects[key]
	if !ok || obj.GroupVersionKind().Group != gvk.Group {
		return nil, apierrors.NewNotFound(resourceFor(gvk), key.Name)
	}
	return obj.DeepCopy(), nil
}

// List implements api.ClusterClient.
func (c *Cluster) List(ctx context.Context, gvk schema.GroupVersionKind, namespace, labelSelector string) ([]unstructured.Unstructured, error) {
	selector, err := labels.Parse(labelSelector)
	if err != nil {
		return nil, apierrors.NewBadRequest(err.Error())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkServed(gvk); err != nil {
		return nil, err
	}
	if err := c.begin(VerbList, api.ResourceKey{Kind: gvk.Kind, Namespace: namespace}); err != nil {
		return nil, err
	}

	var out []unstructured.Unstructured
	for key, obj := range c.objects {
		if key.Kind != gvk.Kind || obj.GroupVersionKind().Group != gvk.Group {
			continue
		}
		if namespace != "" && key.Namespace != namespace {
			continue
		}
		if !selector.Matches(labels.Set(obj.GetLabels())) {
			continue
		}
		out = append(out, *obj.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out, nil
}

// Apply implements api.ClusterClient.
func (c *Cluster) Apply(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	key := api.KeyOf(obj)
	var live *unstructured.Unstructured
	err := c.mutate(ctx, VerbApply, key, func() error {
		if err := c.checkServed(obj.GroupVersionKind()); err != nil {
			return err
		}
		if key.Namespace != "" && !c.namespaces[key.Namespace] {
			return apierrors.NewNotFound(schema.GroupResource{Resource: "namespaces"}, key.Namespace)
		}
		c.revision++
		stored := obj.DeepCopy()
		stored.SetResourceVersion(strconv.Itoa(c.revision))
		c.objects[key] = stored
		live = stored.DeepCopy()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return live, nil
}

// Delete implements api.ClusterClient.
func (c *Cluster) Delete(ctx context.Context, gvk schema.GroupVersionKind, key api.ResourceKey) error {
	return c.mutate(ctx, VerbDelete, key, func() error {
		if _, ok := c.objects[key]; !ok {
			return apierrors.NewNotFound(resourceFor(gvk), key.Name)
		}
		delete(c.objects, key)
		return nil
	})
}

// EnsureNamespace implements api.ClusterClient.
func (c *Cluster) EnsureNamespace(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("namespace name is empty")
	}
	created := false
	err := c.mutate(ctx, VerbEnsureNamespace, api.ResourceKey{Kind: "Namespace", Name: name}, func() error {
		if !c.namespaces[name] {
			c.namespaces[name] = true
			created = true
		}
		return nil
	})
	return created, err
}

var _ api.ClusterClient = (*Cluster)(nil)
