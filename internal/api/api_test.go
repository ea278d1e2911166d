package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func TestInstanceValidate(t *testing.T) {
	base := func() Instance {
		return Instance{
			UUID:        "inst-1",
			Application: Application{Name: "shop"},
			Components: []Component{
				{UUID: "c1", Name: "web", Type: ComponentTypeWebapp, Visibility: VisibilityPublic},
				{UUID: "c2", Name: "jobs", Type: ComponentTypeWorker},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Instance)
		wantErr string
	}{
		{name: "valid", mutate: func(*Instance) {}},
		{
			name:    "duplicate name",
			mutate:  func(i *Instance) { i.Components[1].Name = "web" },
			wantErr: "duplicate component name",
		},
		{
			name:    "duplicate uuid",
			mutate:  func(i *Instance) { i.Components[1].UUID = "c1" },
			wantErr: "duplicate component uuid",
		},
		{
			name:    "unknown type",
			mutate:  func(i *Instance) { i.Components[1].Type = "daemon" },
			wantErr: "unsupported type",
		},
		{
			name:    "unknown visibility",
			mutate:  func(i *Instance) { i.Components[0].Visibility = "internet" },
			wantErr: "unsupported visibility",
		},
		{
			name:    "no namespace",
			mutate:  func(i *Instance) { i.Application.Name = "" },
			wantErr: "no application name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := base()
			tt.mutate(&inst)
			err := inst.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInstanceTargetNamespace(t *testing.T) {
	inst := Instance{Application: Application{Name: "shop"}}
	assert.Equal(t, "shop", inst.TargetNamespace())

	inst.Namespace = "shop-prod"
	assert.Equal(t, "shop-prod", inst.TargetNamespace())
}

func TestProtocolRouteKind(t *testing.T) {
	tests := map[Protocol]string{
		"http":  RouteKindHTTP,
		"HTTPS": RouteKindHTTP,
		"grpc":  RouteKindGRPC,
		"tls":   RouteKindTLS,
		"tcp":   RouteKindTCP,
		"udp":   RouteKindUDP,
		"sctp":  "",
	}
	for proto, want := range tests {
		assert.Equal(t, want, proto.RouteKind(), "protocol %s", proto)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "   ", want: nil},
		{in: "python manage.py runserver", want: []string{"python", "manage.py", "runserver"}},
		{in: `sh -c "echo hello world"`, want: []string{"sh", "-c", "echo hello world"}},
		{in: `echo 'a "b" c'`, want: []string{"echo", `a "b" c`}},
		{in: `echo a\ b`, want: []string{"echo", "a b"}},
		{in: `echo ""`, want: []string{"echo", ""}},
		{in: `echo "unterminated`, wantErr: true},
		{in: `echo trailing\`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SplitCommand(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandDecoding(t *testing.T) {
	var fromYAML struct {
		A Command `yaml:"a"`
		B Command `yaml:"b"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: celery -A app worker\nb: [\"/bin/run\", \"--fast\"]\n"), &fromYAML))
	assert.Equal(t, Command{"celery", "-A", "app", "worker"}, fromYAML.A)
	assert.Equal(t, Command{"/bin/run", "--fast"}, fromYAML.B)

	var fromJSON struct {
		A Command `json:"a"`
		B Command `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"node server.js","b":["x","y z"]}`), &fromJSON))
	assert.Equal(t, Command{"node", "server.js"}, fromJSON.A)
	assert.Equal(t, Command{"x", "y z"}, fromJSON.B)

	var bad struct {
		A Command `yaml:"a"`
	}
	assert.Error(t, yaml.Unmarshal([]byte("a: {x: 1}\n"), &bad))
}

func TestOwnershipOf(t *testing.T) {
	owned := func(labels, annotations map[string]string) *unstructured.Unstructured {
		obj := &unstructured.Unstructured{}
		obj.SetAPIVersion("v1")
		obj.SetKind("Service")
		obj.SetNamespace("shop")
		obj.SetName("web")
		obj.SetLabels(labels)
		obj.SetAnnotations(annotations)
		return obj
	}
	goodLabels := map[string]string{LabelManagedBy: ManagedByValue, LabelInstance: "i1", LabelComponent: "c1"}

	o, ok := OwnershipOf(owned(goodLabels, map[string]string{AnnotationOwner: "i1/c1"}))
	require.True(t, ok)
	assert.Equal(t, Ownership{InstanceUUID: "i1", ComponentUUID: "c1"}, *o)

	_, ok = OwnershipOf(owned(goodLabels, nil))
	assert.False(t, ok, "annotation is required")

	_, ok = OwnershipOf(owned(goodLabels, map[string]string{AnnotationOwner: "i2/c1"}))
	assert.False(t, ok, "annotation must agree with labels")

	_, ok = OwnershipOf(owned(map[string]string{LabelInstance: "i1", LabelComponent: "c1"}, map[string]string{AnnotationOwner: "i1/c1"}))
	assert.False(t, ok, "managed-by label is required")

	res := Observe(owned(goodLabels, map[string]string{AnnotationOwner: "i1/c1", AnnotationDigest: "abc"}))
	assert.True(t, res.OwnedBy("i1"))
	assert.False(t, res.OwnedBy("i2"))
	assert.Equal(t, "abc", res.Digest)
	assert.Equal(t, ResourceKey{Kind: "Service", Namespace: "shop", Name: "web"}, res.Key)
}

func TestParseOwnerValue(t *testing.T) {
	o, ok := ParseOwnerValue(OwnerValue("i", "c"))
	assert.True(t, ok)
	assert.Equal(t, Ownership{InstanceUUID: "i", ComponentUUID: "c"}, o)

	_, ok = ParseOwnerValue("no-slash")
	assert.False(t, ok)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&RenderError{ComponentName: "web", Reason: "bad"}, ErrorKindRender},
		{fmt.Errorf("wrapped: %w", &PlanError{InstanceUUID: "i"}), ErrorKindPlan},
		{&ApplyError{Verb: ActionCreate, Err: errors.New("x")}, ErrorKindApply},
		{&LockError{InstanceUUID: "i"}, ErrorKindLock},
		{&CapabilityError{ComponentName: "web"}, ErrorKindCapability},
		{errors.New("other"), ErrorKindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err))
	}
	assert.True(t, IsLockError(fmt.Errorf("start: %w", &LockError{InstanceUUID: "i"})))
	assert.True(t, IsNotFound(fmt.Errorf("get: %w", NewNotFoundError("instance", "i"))))
	assert.Equal(t, "instance i not found", NewNotFoundError("instance", "i").Error())
}

func TestRenderErrorMessage(t *testing.T) {
	err := &RenderError{ComponentName: "web", Template: "deployment", MissingVariables: []string{"image", "port"}}
	assert.Equal(t, `render component "web" (template deployment): missing variables: image, port`, err.Error())

	cause := errors.New("yaml: line 3")
	wrapped := &RenderError{ComponentName: "web", Reason: "invalid document", Err: cause}
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "invalid document: yaml: line 3")
}

func TestSyncRunDeepCopy(t *testing.T) {
	run := &SyncRun{
		ID: "r1",
		Components: []ComponentOutcome{{
			Name:             "web",
			Warnings:         []string{"w"},
			AppliedResources: []ResourceKey{{Kind: "Service", Name: "web"}},
		}},
		Plan: &PlanSummary{Creates: 1},
	}
	cp := run.DeepCopy()
	cp.Components[0].Warnings[0] = "changed"
	cp.Plan.Creates = 5

	assert.Equal(t, "w", run.Components[0].Warnings[0])
	assert.Equal(t, 1, run.Plan.Creates)

	c, ok := run.Component("web")
	require.True(t, ok)
	assert.Equal(t, "web", c.Name)
}

func TestSyncServiceRegistry(t *testing.T) {
	RegisterSyncService(nil)
	assert.Nil(t, GetSyncService())
}
