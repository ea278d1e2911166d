package orchestrator

import (
	"shipyard/internal/api"
)

// Adapter exposes the orchestrator through the api package's service
// registry so transports can reach it without importing this package.
type Adapter struct {
	orchestrator *Orchestrator
}

// NewAPIAdapter creates a new orchestrator adapter
func NewAPIAdapter(orchestrator *Orchestrator) *Adapter {
	return &Adapter{
		orchestrator: orchestrator,
	}
}

// Register registers the orchestrator with the API
func (a *Adapter) Register() {
	api.RegisterSyncService(a.orchestrator)
}

// Unregister clears the registration made by Register.
func (a *Adapter) Unregister() {
	if api.GetSyncService() == api.SyncService(a.orchestrator) {
		api.RegisterSyncService(nil)
	}
}
