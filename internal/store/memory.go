package store

import (
	"context"
	"sort"
	"sync"

	"shipyard/internal/api"
)

// MemoryStore keeps instances, inventories and sync runs in memory. It
// implements api.InstanceStore and api.SyncRunStore.
type MemoryStore struct {
	mu          sync.RWMutex
	instances   map[string]api.Instance
	inventories map[string]*api.Inventory
	runs        map[string]*api.SyncRun
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances:   make(map[string]api.Instance),
		inventories: make(map[string]*api.Inventory),
		runs:        make(map[string]*api.SyncRun),
	}
}

// PutInstance adds or replaces an instance.
func (s *MemoryStore) PutInstance(inst api.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[inst.UUID] = cloneInstance(inst)
}

// GetInstance implements api.InstanceStore.
func (s *MemoryStore) GetInstance(_ context.Context, instanceUUID string) (*api.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[instanceUUID]
	if !ok {
		return nil, api.NewNotFoundError("instance", instanceUUID)
	}
	out := cloneInstance(inst)
	return &out, nil
}

// ListInstances implements api.InstanceStore.
func (s *MemoryStore) ListInstances(context.Context) ([]api.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, cloneInstance(inst))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

// GetInventory implements api.InstanceStore.
func (s *MemoryStore) GetInventory(_ context.Context, instanceUUID string) (*api.Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if inv, ok := s.inventories[instanceUUID]; ok {
		return inv.Clone(), nil
	}
	return api.NewInventory(instanceUUID), nil
}

// SaveInventory implements api.InstanceStore.
func (s *MemoryStore) SaveInventory(_ context.Context, inv *api.Inventory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventories[inv.InstanceUUID] = inv.Clone()
	return nil
}

// SaveRun implements api.SyncRunStore.
func (s *MemoryStore) SaveRun(_ context.Context, run *api.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.DeepCopy()
	return nil
}

// GetRun implements api.SyncRunStore.
func (s *MemoryStore) GetRun(_ context.Context, runID string) (*api.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, api.NewNotFoundError("syncrun", runID)
	}
	return run.DeepCopy(), nil
}

// ListRuns implements api.SyncRunStore.
func (s *MemoryStore) ListRuns(_ context.Context, instanceUUID string) ([]*api.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*api.SyncRun
	for _, run := range s.runs {
		if instanceUUID == "" || run.InstanceUUID == instanceUUID {
			out = append(out, run.DeepCopy())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(runs []*api.SyncRun) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
}

func cloneInstance(inst api.Instance) api.Instance {
	out := inst
	out.Environment.Settings = cloneStrings(inst.Environment.Settings)
	out.Components = make([]api.Component, len(inst.Components))
	copy(out.Components, inst.Components)
	return out
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var (
	_ api.InstanceStore = (*MemoryStore)(nil)
	_ api.SyncRunStore  = (*MemoryStore)(nil)
)
