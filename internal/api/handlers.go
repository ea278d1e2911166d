package api

import (
	"sync"

	"shipyard/pkg/logging"
)

// Handler registry variables store the registered implementations.
// These variables are protected by handlerMutex for thread-safe access.
var (
	syncServiceHandler   SyncService
	instanceStoreHandler InstanceStore

	// handlerMutex protects all handler registry operations.
	handlerMutex sync.RWMutex
)

// RegisterSyncService registers the sync engine. Subsequent registrations
// replace the previous handler; registering nil clears it.
//
// Thread-safe: Yes, protected by handlerMutex.
//
// Example:
//
//	orch := orchestrator.New(deps, cfg)
//	api.RegisterSyncService(orch)
func RegisterSyncService(h SyncService) {
	handlerMutex.Lock()
	defer handlerMutex.Unlock()
	logging.Debug("API", "Registering sync service handler: %v", h != nil)
	syncServiceHandler = h
}

// GetSyncService returns the registered sync engine, or nil.
func GetSyncService() SyncService {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()
	return syncServiceHandler
}

// RegisterInstanceStore registers the instance store used by transports to
// enumerate instances.
func RegisterInstanceStore(h InstanceStore) {
	handlerMutex.Lock()
	defer handlerMutex.Unlock()
	logging.Debug("API", "Registering instance store handler: %v", h != nil)
	instanceStoreHandler = h
}

// GetInstanceStore returns the registered instance store, or nil.
func GetInstanceStore() InstanceStore {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()
	return instanceStoreHandler
}
