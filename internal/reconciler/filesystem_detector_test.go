package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceName(t *testing.T) {
	instances := watchRoot{resourceType: ResourceTypeInstance, path: "/etc/shipyard/instances"}
	templates := watchRoot{resourceType: ResourceTypeTemplate, path: "/etc/shipyard/templates", recursive: true}

	tests := []struct {
		name string
		root watchRoot
		path string
		want string
	}{
		{name: "instance yaml", root: instances, path: "/etc/shipyard/instances/inst-1.yaml", want: "inst-1"},
		{name: "instance yml", root: instances, path: "/etc/shipyard/instances/inst-2.yml", want: "inst-2"},
		{name: "instance editor swap file", root: instances, path: "/etc/shipyard/instances/.inst-1.yaml.swp"},
		{name: "instance hidden yaml", root: instances, path: "/etc/shipyard/instances/.draft.yaml"},
		{name: "instance in subdirectory", root: instances, path: "/etc/shipyard/instances/old/inst-1.yaml"},
		{name: "instance not yaml", root: instances, path: "/etc/shipyard/instances/notes.txt"},
		{name: "outside root", root: instances, path: "/etc/other/inst-1.yaml"},
		{name: "template document", root: templates, path: "/etc/shipyard/templates/webapp/v2/deployment.yaml", want: "webapp"},
		{name: "template version directory", root: templates, path: "/etc/shipyard/templates/webapp/v3", want: "webapp"},
		{name: "template type directory", root: templates, path: "/etc/shipyard/templates/cron", want: "cron"},
		{name: "file at template root", root: templates, path: "/etc/shipyard/templates/readme.yaml"},
		{name: "hidden template directory", root: templates, path: "/etc/shipyard/templates/.git/HEAD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resourceName(tt.root, tt.path))
		})
	}
}

func TestMergeOperations(t *testing.T) {
	tests := []struct {
		prev, next, want ChangeOperation
	}{
		{OperationCreate, OperationUpdate, OperationCreate},
		{OperationCreate, OperationDelete, OperationDelete},
		{OperationUpdate, OperationUpdate, OperationUpdate},
		{OperationUpdate, OperationDelete, OperationDelete},
		{OperationDelete, OperationCreate, OperationUpdate},
	}
	for _, tt := range tests {
		t.Run(string(tt.prev)+"+"+string(tt.next), func(t *testing.T) {
			assert.Equal(t, tt.want, mergeOperations(tt.prev, tt.next))
		})
	}
}

func TestIsYAMLFile(t *testing.T) {
	assert.True(t, isYAMLFile("a.yaml"))
	assert.True(t, isYAMLFile("a.YML"))
	assert.False(t, isYAMLFile("a.json"))
	assert.False(t, isYAMLFile("yaml"))
}

// waitEvent returns the first event for typ/name, skipping others. When op
// is given, only events with that operation match.
func waitEvent(t *testing.T, ch <-chan ChangeEvent, typ ResourceType, name string, op ...ChangeOperation) ChangeEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ && ev.Name == name && (len(op) == 0 || ev.Operation == op[0]) {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s/%s event received", typ, name)
			return ChangeEvent{}
		}
	}
}

func TestFilesystemDetectorEmitsEvents(t *testing.T) {
	base := t.TempDir()
	instancesDir := filepath.Join(base, "instances")
	templatesDir := filepath.Join(base, "templates")

	d := NewFilesystemDetector(20 * time.Millisecond)
	d.AddRoot(ResourceTypeInstance, instancesDir, false)
	d.AddRoot(ResourceTypeTemplate, templatesDir, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan ChangeEvent, 16)
	require.NoError(t, d.Start(ctx, changes))
	defer func() { assert.NoError(t, d.Stop()) }()

	assert.DirExists(t, instancesDir, "missing roots are created")
	assert.Equal(t, SourceFilesystem, d.GetSource())

	require.NoError(t, os.WriteFile(filepath.Join(instancesDir, "inst-1.yaml"), []byte("uuid: inst-1\n"), 0644))
	ev := waitEvent(t, changes, ResourceTypeInstance, "inst-1")
	assert.Equal(t, OperationCreate, ev.Operation)
	assert.Equal(t, SourceFilesystem, ev.Source)

	require.NoError(t, os.Remove(filepath.Join(instancesDir, "inst-1.yaml")))
	ev = waitEvent(t, changes, ResourceTypeInstance, "inst-1", OperationDelete)
	assert.Equal(t, filepath.Join(instancesDir, "inst-1.yaml"), ev.FilePath)

	setDir := filepath.Join(templatesDir, "webapp", "v3")
	require.NoError(t, os.MkdirAll(setDir, 0755))
	waitEvent(t, changes, ResourceTypeTemplate, "webapp")

	require.NoError(t, os.WriteFile(filepath.Join(setDir, "service.yaml"), []byte("kind: Service\n"), 0644))
	ev = waitEvent(t, changes, ResourceTypeTemplate, "webapp")
	assert.Contains(t, ev.FilePath, "webapp")
}

func TestFilesystemDetectorStopIsIdempotent(t *testing.T) {
	d := NewFilesystemDetector(0)
	assert.NoError(t, d.Stop(), "stop before start")

	d.AddRoot(ResourceTypeInstance, t.TempDir(), false)
	require.NoError(t, d.Start(context.Background(), make(chan ChangeEvent, 1)))
	assert.NoError(t, d.Stop())
	assert.NoError(t, d.Stop())
}
