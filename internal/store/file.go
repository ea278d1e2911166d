package store

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"shipyard/internal/api"
	"shipyard/internal/config"
	"shipyard/pkg/logging"
)

// Entity types below the storage directory.
const (
	EntityInstances   = "instances"
	EntityInventories = "inventories"
)

// FileStore reads instances from YAML files and persists inventories next
// to them. Instance files are named after the instance UUID.
type FileStore struct {
	storage *config.Storage
}

// NewFileStore creates a store rooted at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{storage: config.NewStorageWithPath(path)}
}

// GetInstance implements api.InstanceStore.
func (s *FileStore) GetInstance(_ context.Context, instanceUUID string) (*api.Instance, error) {
	data, err := s.storage.Load(EntityInstances, instanceUUID)
	if err != nil {
		if api.IsNotFound(err) {
			return nil, api.NewNotFoundError("instance", instanceUUID)
		}
		return nil, err
	}
	var inst api.Instance
	if err := yaml.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("failed to parse instance %s: %w", instanceUUID, err)
	}
	if inst.UUID == "" {
		inst.UUID = instanceUUID
	}
	if inst.UUID != instanceUUID {
		return nil, fmt.Errorf("instance file %s declares uuid %s", instanceUUID, inst.UUID)
	}
	return &inst, nil
}

// SaveInstance writes an instance file.
func (s *FileStore) SaveInstance(inst *api.Instance) error {
	data, err := yaml.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to encode instance %s: %w", inst.UUID, err)
	}
	return s.storage.Save(EntityInstances, inst.UUID, data)
}

// ListInstances implements api.InstanceStore. Unreadable files are logged
// and skipped.
func (s *FileStore) ListInstances(ctx context.Context) ([]api.Instance, error) {
	names, err := s.storage.List(EntityInstances)
	if err != nil {
		return nil, err
	}
	out := make([]api.Instance, 0, len(names))
	for _, name := range names {
		inst, err := s.GetInstance(ctx, name)
		if err != nil {
			logging.Warn(api.SubsystemStore, "Skipping instance file %s: %v", name, err)
			continue
		}
		out = append(out, *inst)
	}
	return out, nil
}

// GetInventory implements api.InstanceStore.
func (s *FileStore) GetInventory(_ context.Context, instanceUUID string) (*api.Inventory, error) {
	data, err := s.storage.Load(EntityInventories, instanceUUID)
	if api.IsNotFound(err) {
		return api.NewInventory(instanceUUID), nil
	}
	if err != nil {
		return nil, err
	}
	inv := api.NewInventory(instanceUUID)
	if err := yaml.Unmarshal(data, inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory of %s: %w", instanceUUID, err)
	}
	if inv.Components == nil {
		inv.Components = map[string][]api.InventoryEntry{}
	}
	return inv, nil
}

// SaveInventory implements api.InstanceStore.
func (s *FileStore) SaveInventory(_ context.Context, inv *api.Inventory) error {
	data, err := yaml.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to encode inventory of %s: %w", inv.InstanceUUID, err)
	}
	return s.storage.Save(EntityInventories, inv.InstanceUUID, data)
}

var _ api.InstanceStore = (*FileStore)(nil)
