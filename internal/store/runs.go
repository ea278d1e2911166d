package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"shipyard/internal/api"
	"shipyard/internal/config"
	"shipyard/pkg/logging"
)

// EntitySyncRuns is the entity type of persisted sync runs.
const EntitySyncRuns = "syncruns"

// runSummary is what listing needs without reading every run file again.
type runSummary struct {
	instanceUUID string
	run          *api.SyncRun
}

// RunStore persists sync runs as one JSON document each, with an in-memory
// index for listing. It implements api.SyncRunStore.
type RunStore struct {
	storage   *config.Storage
	mu        sync.RWMutex
	cache     map[string]runSummary
	loaded    bool
	retention int
}

// RunStoreOption configures a RunStore.
type RunStoreOption func(*RunStore)

// WithRunRetention keeps only the newest keep terminal runs per instance.
// Zero keeps every run.
func WithRunRetention(keep int) RunStoreOption {
	return func(rs *RunStore) {
		rs.retention = keep
	}
}

// NewRunStore creates a run store rooted at path.
func NewRunStore(path string, opts ...RunStoreOption) *RunStore {
	rs := &RunStore{
		storage: config.NewStorageWithPath(path),
		cache:   make(map[string]runSummary),
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

// SaveRun implements api.SyncRunStore.
func (rs *RunStore) SaveRun(_ context.Context, run *api.SyncRun) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync run %s: %w", run.ID, err)
	}
	if err := rs.storage.Save(EntitySyncRuns, run.ID, data); err != nil {
		return fmt.Errorf("failed to save sync run %s: %w", run.ID, err)
	}
	rs.cache[run.ID] = runSummary{instanceUUID: run.InstanceUUID, run: run.DeepCopy()}

	logging.Debug(api.SubsystemStore, "Stored sync run %s (%s) for instance %s", run.ID, run.Status, run.InstanceUUID)
	if rs.retention > 0 && run.Status.Terminal() {
		rs.prune(run.InstanceUUID)
	}
	return nil
}

// prune deletes the terminal runs of an instance beyond the retention count.
// Failures only leave extra history behind. Must be called with the lock
// held.
func (rs *RunStore) prune(instanceUUID string) {
	if err := rs.refreshCache(); err != nil {
		logging.Warn(api.SubsystemStore, "Skipping sync run pruning: %v", err)
		return
	}
	var finished []*api.SyncRun
	for _, summary := range rs.cache {
		if summary.instanceUUID == instanceUUID && summary.run.Status.Terminal() {
			finished = append(finished, summary.run)
		}
	}
	if len(finished) <= rs.retention {
		return
	}
	sortNewestFirst(finished)
	for _, old := range finished[rs.retention:] {
		if err := rs.storage.Delete(EntitySyncRuns, old.ID); err != nil && !api.IsNotFound(err) {
			logging.Warn(api.SubsystemStore, "Failed to prune sync run %s: %v", old.ID, err)
			continue
		}
		delete(rs.cache, old.ID)
	}
	logging.Debug(api.SubsystemStore, "Pruned %d sync runs of instance %s", len(finished)-rs.retention, instanceUUID)
}

// GetRun implements api.SyncRunStore.
func (rs *RunStore) GetRun(_ context.Context, runID string) (*api.SyncRun, error) {
	rs.mu.RLock()
	if cached, ok := rs.cache[runID]; ok {
		rs.mu.RUnlock()
		return cached.run.DeepCopy(), nil
	}
	rs.mu.RUnlock()

	run, err := rs.load(runID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (rs *RunStore) load(runID string) (*api.SyncRun, error) {
	data, err := rs.storage.Load(EntitySyncRuns, runID)
	if err != nil {
		if api.IsNotFound(err) {
			return nil, api.NewNotFoundError("syncrun", runID)
		}
		return nil, fmt.Errorf("failed to load sync run %s: %w", runID, err)
	}
	var run api.SyncRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns implements api.SyncRunStore.
func (rs *RunStore) ListRuns(_ context.Context, instanceUUID string) ([]*api.SyncRun, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := rs.refreshCache(); err != nil {
		return nil, fmt.Errorf("failed to refresh sync run cache: %w", err)
	}

	var out []*api.SyncRun
	for _, summary := range rs.cache {
		if instanceUUID != "" && summary.instanceUUID != instanceUUID {
			continue
		}
		out = append(out, summary.run.DeepCopy())
	}
	sortNewestFirst(out)
	return out, nil
}

// refreshCache reads the run files written before this process started.
// Must be called with the lock held.
func (rs *RunStore) refreshCache() error {
	if rs.loaded {
		return nil
	}
	names, err := rs.storage.List(EntitySyncRuns)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, ok := rs.cache[name]; ok {
			continue
		}
		run, err := rs.load(name)
		if err != nil {
			logging.Warn(api.SubsystemStore, "Skipping sync run file %s: %v", name, err)
			continue
		}
		rs.cache[run.ID] = runSummary{instanceUUID: run.InstanceUUID, run: run}
	}
	rs.loaded = true
	return nil
}

var _ api.SyncRunStore = (*RunStore)(nil)
