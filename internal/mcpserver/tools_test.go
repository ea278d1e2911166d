package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipyard/internal/api"
	"shipyard/internal/config"
	"shipyard/internal/store"
)

type fakeSyncService struct {
	runs      map[string]*api.SyncRun
	started   []string
	cancelled []string
	startErr  error
	preview   *api.PlanPreview
}

func (f *fakeSyncService) StartSync(ctx context.Context, instanceUUID string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	id := fmt.Sprintf("run-%d", len(f.started)+1)
	f.started = append(f.started, instanceUUID)
	f.runs[id] = &api.SyncRun{ID: id, InstanceUUID: instanceUUID, Status: api.SyncStatusSucceeded, StartedAt: time.Unix(int64(len(f.started)), 0)}
	return id, nil
}

func (f *fakeSyncService) GetSyncStatus(ctx context.Context, runID string) (*api.SyncRun, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, api.NewNotFoundError("syncrun", runID)
	}
	return run, nil
}

func (f *fakeSyncService) ListSyncRuns(ctx context.Context, instanceUUID string) ([]*api.SyncRun, error) {
	var out []*api.SyncRun
	for i := len(f.started); i >= 1; i-- {
		run := f.runs[fmt.Sprintf("run-%d", i)]
		if instanceUUID == "" || run.InstanceUUID == instanceUUID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (f *fakeSyncService) CancelSync(ctx context.Context, runID string) error {
	if _, ok := f.runs[runID]; !ok {
		return api.NewNotFoundError("syncrun", runID)
	}
	f.cancelled = append(f.cancelled, runID)
	return nil
}

func (f *fakeSyncService) Wait(ctx context.Context, runID string) (*api.SyncRun, error) {
	return f.GetSyncStatus(ctx, runID)
}

func (f *fakeSyncService) Plan(ctx context.Context, instanceUUID string) (*api.PlanPreview, error) {
	if f.preview == nil {
		return nil, api.NewNotFoundError("instance", instanceUUID)
	}
	return f.preview, nil
}

func newTestServer(t *testing.T) (*Server, *fakeSyncService) {
	t.Helper()
	svc := &fakeSyncService{runs: map[string]*api.SyncRun{}}
	api.RegisterSyncService(svc)
	t.Cleanup(func() { api.RegisterSyncService(nil) })
	return NewServer(config.ServerConfig{Transport: config.MCPTransportStdio}, "test"), svc
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	content, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return content.Text
}

func TestRegisteredTools(t *testing.T) {
	s, _ := newTestServer(t)
	tools := s.MCPServer().ListTools()
	for _, name := range []string{"instance_list", "sync_start", "sync_status", "sync_list", "sync_cancel", "sync_plan"} {
		assert.Contains(t, tools, name)
	}
}

func TestSyncStart(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the run id", func(t *testing.T) {
		s, svc := newTestServer(t)
		result, err := s.handleSyncStart(ctx, call(map[string]interface{}{"instance": "inst-1"}))
		require.NoError(t, err)
		assert.False(t, result.IsError)

		var got map[string]string
		require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))
		assert.Equal(t, map[string]string{"run": "run-1", "instance": "inst-1"}, got)
		assert.Equal(t, []string{"inst-1"}, svc.started)
	})

	t.Run("waits for the outcome", func(t *testing.T) {
		s, _ := newTestServer(t)
		result, err := s.handleSyncStart(ctx, call(map[string]interface{}{"instance": "inst-1", "wait": true, "timeout_seconds": float64(1)}))
		require.NoError(t, err)

		var run api.SyncRun
		require.NoError(t, json.Unmarshal([]byte(text(t, result)), &run))
		assert.Equal(t, api.SyncStatusSucceeded, run.Status)
	})

	t.Run("lock conflicts are tool errors", func(t *testing.T) {
		s, svc := newTestServer(t)
		svc.startErr = &api.LockError{InstanceUUID: "inst-1", Holder: "other"}
		result, err := s.handleSyncStart(ctx, call(map[string]interface{}{"instance": "inst-1"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, text(t, result), "Sync rejected: instance inst-1 is locked by other")
	})

	t.Run("instance is required", func(t *testing.T) {
		s, _ := newTestServer(t)
		result, err := s.handleSyncStart(ctx, call(map[string]interface{}{}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestSyncStatusAndCancel(t *testing.T) {
	ctx := context.Background()
	s, svc := newTestServer(t)
	_, _ = svc.StartSync(ctx, "inst-1")

	result, err := s.handleSyncStatus(ctx, call(map[string]interface{}{"run": "run-1"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, result), `"status": "Succeeded"`)

	result, err = s.handleSyncStatus(ctx, call(map[string]interface{}{"run": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleSyncCancel(ctx, call(map[string]interface{}{"run": "run-1"}))
	require.NoError(t, err)
	assert.Equal(t, "Sync run-1 cancelled", text(t, result))
	assert.Equal(t, []string{"run-1"}, svc.cancelled)
}

func TestSyncList(t *testing.T) {
	ctx := context.Background()
	s, svc := newTestServer(t)
	_, _ = svc.StartSync(ctx, "inst-1")
	_, _ = svc.StartSync(ctx, "inst-2")
	_, _ = svc.StartSync(ctx, "inst-1")

	tests := []struct {
		name string
		args map[string]interface{}
		want []string
	}{
		{name: "all runs", args: map[string]interface{}{}, want: []string{"run-3", "run-2", "run-1"}},
		{name: "one instance", args: map[string]interface{}{"instance": "inst-1"}, want: []string{"run-3", "run-1"}},
		{name: "limited", args: map[string]interface{}{"limit": float64(1)}, want: []string{"run-3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.handleSyncList(ctx, call(tt.args))
			require.NoError(t, err)
			var runs []struct {
				ID string `json:"id"`
			}
			require.NoError(t, json.Unmarshal([]byte(text(t, result)), &runs))
			var ids []string
			for _, r := range runs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSyncPlan(t *testing.T) {
	ctx := context.Background()
	s, svc := newTestServer(t)

	result, err := s.handleSyncPlan(ctx, call(map[string]interface{}{"instance": "inst-1"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	svc.preview = &api.PlanPreview{
		InstanceUUID: "inst-1",
		Cluster:      "prod",
		Actions:      []api.PlannedAction{{ID: "ensure-namespace:shop", Verb: api.ActionEnsureNamespace}},
	}
	result, err = s.handleSyncPlan(ctx, call(map[string]interface{}{"instance": "inst-1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, text(t, result), `"cluster": "prod"`)
}

func TestInstanceList(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestServer(t)

	result, err := s.handleInstanceList(ctx, call(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError, "no instance store registered")

	instances := store.NewMemoryStore()
	instances.PutInstance(api.Instance{
		UUID:        "inst-1",
		Application: api.Application{Name: "shop"},
		Environment: api.Environment{Name: "prod"},
		Components: []api.Component{
			{UUID: "c1", Name: "web", Enabled: true},
			{UUID: "c2", Name: "old"},
		},
	})
	api.RegisterInstanceStore(instances)
	t.Cleanup(func() { api.RegisterInstanceStore(nil) })

	result, err = s.handleInstanceList(ctx, call(nil))
	require.NoError(t, err)
	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "shop", got[0]["namespace"])
	assert.Equal(t, []interface{}{"web"}, got[0]["components"])
}

func TestNoSyncService(t *testing.T) {
	s := NewServer(config.ServerConfig{}, "test")
	result, err := s.handleSyncStatus(context.Background(), call(map[string]interface{}{"run": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Sync service not available", text(t, result))
}
