package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipyard/internal/api"
	"shipyard/internal/formatting"
	"shipyard/internal/store"
)

type fakeSyncService struct {
	startErr  error
	status    api.SyncStatus
	runError  string
	waitErr   error
	cancelled []string
	runs      map[string]*api.SyncRun
}

func (f *fakeSyncService) StartSync(_ context.Context, instanceUUID string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return "run-" + instanceUUID, nil
}

func (f *fakeSyncService) Wait(_ context.Context, runID string) (*api.SyncRun, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &api.SyncRun{ID: runID, Status: f.status, Error: f.runError}, nil
}

func (f *fakeSyncService) GetSyncStatus(_ context.Context, runID string) (*api.SyncRun, error) {
	if run, ok := f.runs[runID]; ok {
		return run, nil
	}
	return nil, api.NewNotFoundError("sync run", runID)
}

func (f *fakeSyncService) ListSyncRuns(_ context.Context, instanceUUID string) ([]*api.SyncRun, error) {
	var out []*api.SyncRun
	for _, run := range f.runs {
		if run.InstanceUUID == instanceUUID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (f *fakeSyncService) CancelSync(_ context.Context, runID string) error {
	f.cancelled = append(f.cancelled, runID)
	return nil
}

func (f *fakeSyncService) Plan(_ context.Context, instanceUUID string) (*api.PlanPreview, error) {
	return &api.PlanPreview{
		InstanceUUID: instanceUUID,
		Cluster:      "prod-eu",
		Actions: []api.PlannedAction{{
			Verb: api.ActionCreate,
			Key:  api.ResourceKey{Kind: "Deployment", Namespace: "shop", Name: "web"},
		}},
	}, nil
}

func newTestExecutor(svc api.SyncService, format formatting.OutputFormat) (*Executor, *bytes.Buffer) {
	s := store.NewMemoryStore()
	s.PutInstance(api.Instance{UUID: "inst-1", Application: api.Application{Name: "shop"}, Environment: api.Environment{Name: "prod"}})
	var out bytes.Buffer
	return newExecutor(ExecutorOptions{Format: format, Quiet: true, Output: &out}, svc, s), &out
}

func TestExecutorSync(t *testing.T) {
	tests := []struct {
		name       string
		svc        *fakeSyncService
		wantErr    bool
		wantCode   int
		wantOutput string
	}{
		{
			name:       "succeeded",
			svc:        &fakeSyncService{status: api.SyncStatusSucceeded},
			wantCode:   ExitCodeSuccess,
			wantOutput: "run-inst-1",
		},
		{
			name:       "partially failed",
			svc:        &fakeSyncService{status: api.SyncStatusPartiallyFailed},
			wantErr:    true,
			wantCode:   ExitCodePartiallyFailed,
			wantOutput: "PartiallyFailed",
		},
		{
			name:       "failed",
			svc:        &fakeSyncService{status: api.SyncStatusFailed, runError: "no cluster for environment prod"},
			wantErr:    true,
			wantCode:   ExitCodeSyncFailed,
			wantOutput: "no cluster for environment prod",
		},
		{
			name:     "locked",
			svc:      &fakeSyncService{startErr: &api.LockError{InstanceUUID: "inst-1", Holder: "run-0"}},
			wantErr:  true,
			wantCode: ExitCodeLocked,
		},
		{
			name:     "wait error",
			svc:      &fakeSyncService{waitErr: errors.New("store closed")},
			wantErr:  true,
			wantCode: ExitCodeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, out := newTestExecutor(tt.svc, formatting.FormatJSON)
			err := e.Sync(context.Background(), "inst-1", true)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCode, ExitCode(err))
			if tt.wantOutput != "" {
				assert.Contains(t, out.String(), tt.wantOutput)
			}
		})
	}
}

func TestExecutorSyncNoWait(t *testing.T) {
	e, out := newTestExecutor(&fakeSyncService{}, formatting.FormatTable)
	require.NoError(t, e.Sync(context.Background(), "inst-1", false))
	assert.Equal(t, "run-inst-1\n", out.String())
}

func TestExecutorSyncCancelsOnInterrupt(t *testing.T) {
	svc := &fakeSyncService{waitErr: context.Canceled}
	e, _ := newTestExecutor(svc, formatting.FormatTable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Sync(ctx, "inst-1", true)
	require.Error(t, err)
	assert.Equal(t, []string{"run-inst-1"}, svc.cancelled)
}

func TestExecutorPlan(t *testing.T) {
	e, out := newTestExecutor(&fakeSyncService{}, formatting.FormatJSON)
	require.NoError(t, e.Plan(context.Background(), "inst-1"))

	var preview api.PlanPreview
	require.NoError(t, json.Unmarshal(out.Bytes(), &preview))
	assert.Equal(t, "prod-eu", preview.Cluster)
	require.Len(t, preview.Actions, 1)
	assert.Equal(t, "web", preview.Actions[0].Key.Name)
}

func TestExecutorStatusAndRuns(t *testing.T) {
	svc := &fakeSyncService{runs: map[string]*api.SyncRun{
		"run-1": {ID: "run-1", InstanceUUID: "inst-1", Status: api.SyncStatusSucceeded},
	}}
	e, out := newTestExecutor(svc, formatting.FormatYAML)

	require.NoError(t, e.Status(context.Background(), "run-1"))
	assert.Contains(t, out.String(), "status: Succeeded")

	err := e.Status(context.Background(), "run-9")
	assert.True(t, api.IsNotFound(err))

	out.Reset()
	require.NoError(t, e.Runs(context.Background(), "inst-1"))
	assert.Contains(t, out.String(), "run-1")

	err = e.Runs(context.Background(), "inst-9")
	assert.True(t, api.IsNotFound(err), "unknown instance")
}

func TestExecutorInstances(t *testing.T) {
	e, out := newTestExecutor(&fakeSyncService{}, formatting.FormatJSON)
	require.NoError(t, e.Instances(context.Background()))

	var list []api.Instance
	require.NoError(t, json.Unmarshal(out.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "inst-1", list[0].UUID)
}

func TestNewExecutorBootstrapsEngine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "instances"), 0755))
	doc := "uuid: inst-1\napplication:\n  name: shop\nenvironment:\n  name: prod\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "instances", "inst-1.yaml"), []byte(doc), 0644))

	var out bytes.Buffer
	e, err := NewExecutor(ExecutorOptions{Format: formatting.FormatJSON, Quiet: true, ConfigPath: dir, Output: &out})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Instances(context.Background()))
	assert.Contains(t, out.String(), "inst-1")

	e.Close()
	assert.Nil(t, api.GetSyncService(), "close unregisters the engine")
}

func TestSyncFailedError(t *testing.T) {
	err := fmt.Errorf("command: %w", &SyncFailedError{RunID: "run-1", Status: api.SyncStatusFailed, Reason: "lease lost"})
	assert.ErrorIs(t, err, &SyncFailedError{})
	assert.Contains(t, err.Error(), "sync run-1 finished Failed: lease lost")
	assert.Contains(t, err.Error(), "shipyard status run-1")
	assert.Equal(t, ExitCodeSyncFailed, ExitCode(err))
	assert.Equal(t, ExitCodeSuccess, ExitCode(nil))
}

func TestCommandFlagsToExecutorOptions(t *testing.T) {
	flags := &CommandFlags{OutputFormat: "yaml", Quiet: true, ConfigPath: "/etc/shipyard"}
	opts, err := flags.ToExecutorOptions("1.0.0")
	require.NoError(t, err)
	assert.Equal(t, formatting.FormatYAML, opts.Format)
	assert.True(t, opts.Quiet)
	assert.Equal(t, "/etc/shipyard", opts.ConfigPath)
	assert.Equal(t, "1.0.0", opts.Version)

	flags.OutputFormat = "wide"
	_, err = flags.ToExecutorOptions("1.0.0")
	assert.Error(t, err)
}
