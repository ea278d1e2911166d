package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"k8s.io/client-go/util/workqueue"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

// Manager coordinates all reconciliation activities.
//
// It manages:
//   - the filesystem change detector
//   - resource-specific reconcilers
//   - the work queue and worker pool
//   - periodic resync
type Manager struct {
	mu sync.RWMutex

	config  ManagerConfig
	metrics *Metrics

	changeDetector ChangeDetector
	reconcilers    map[ResourceType]Reconciler
	queue          workqueue.TypedRateLimitingInterface[ReconcileRequest]

	// statusTracker is keyed by ReconcileRequest.String()
	statusTracker map[string]*ReconcileStatus

	changeChan chan ChangeEvent

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
}

// NewManager creates a new reconciliation manager. metrics may be nil.
func NewManager(config ManagerConfig, metrics *Metrics) *Manager {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 2
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = time.Minute
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}
	if config.ReconcileTimeout <= 0 {
		config.ReconcileTimeout = 15 * time.Minute
	}

	return &Manager{
		config:        config,
		metrics:       metrics,
		reconcilers:   make(map[ResourceType]Reconciler),
		queue:         newQueue(config, metrics.queueProvider()),
		statusTracker: make(map[string]*ReconcileStatus),
		changeChan:    make(chan ChangeEvent, 100),
	}
}

// RegisterReconciler registers a reconciler for its resource type.
func (m *Manager) RegisterReconciler(reconciler Reconciler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	resourceType := reconciler.GetResourceType()
	if _, exists := m.reconcilers[resourceType]; exists {
		return fmt.Errorf("reconciler for %s already registered", resourceType)
	}
	m.reconcilers[resourceType] = reconciler
	logging.Debug(api.SubsystemReconciler, "Registered reconciler for %s", resourceType)
	return nil
}

// Start starts the detector, the workers and the resync loop, and enqueues
// every listed resource once.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	if m.queue.ShuttingDown() {
		m.mu.Unlock()
		return errors.New("reconcile manager cannot be restarted")
	}
	m.ctx, m.cancelFunc = context.WithCancel(ctx)
	m.running = true

	if m.config.Watch {
		m.changeDetector = m.newFilesystemDetector()
	}
	detector := m.changeDetector
	m.mu.Unlock()

	if detector != nil {
		if err := detector.Start(m.ctx, m.changeChan); err != nil {
			m.mu.Lock()
			m.running = false
			m.cancelFunc()
			m.mu.Unlock()
			return fmt.Errorf("failed to start change detector: %w", err)
		}
		m.wg.Add(1)
		go m.processChangeEvents()
	}

	for i := 0; i < m.config.WorkerCount; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	m.resync(SourceResync)
	if m.config.ResyncInterval > 0 {
		m.wg.Add(1)
		go m.resyncLoop()
	}

	logging.Info(api.SubsystemReconciler, "Started with %d workers (watch: %v, resync: %v)",
		m.config.WorkerCount, m.config.Watch, m.config.ResyncInterval)
	return nil
}

// newFilesystemDetector watches the directories of the registered
// reconcilers. The caller holds m.mu.
func (m *Manager) newFilesystemDetector() *FilesystemDetector {
	d := NewFilesystemDetector(m.config.DebounceInterval)
	if _, ok := m.reconcilers[ResourceTypeInstance]; ok && m.config.InstancesPath != "" {
		d.AddRoot(ResourceTypeInstance, m.config.InstancesPath, false)
	}
	if _, ok := m.reconcilers[ResourceTypeTemplate]; ok && m.config.TemplatesPath != "" {
		d.AddRoot(ResourceTypeTemplate, m.config.TemplatesPath, true)
	}
	return d
}

// processChangeEvents converts change events to reconcile requests.
func (m *Manager) processChangeEvents() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event := <-m.changeChan:
			m.handleChangeEvent(event)
		}
	}
}

func (m *Manager) handleChangeEvent(event ChangeEvent) {
	m.mu.RLock()
	_, registered := m.reconcilers[event.Type]
	m.mu.RUnlock()
	if !registered {
		logging.Debug(api.SubsystemReconciler, "Ignoring %s event for %s/%s: no reconciler",
			event.Operation, event.Type, event.Name)
		return
	}

	logging.Debug(api.SubsystemReconciler, "Handling %s %s event for %s/%s",
		event.Source, event.Operation, event.Type, event.Name)

	req := ReconcileRequest{Type: event.Type, Name: event.Name}
	m.updateStatus(req, StatePending, "", "")
	m.queue.Add(req)
}

func (m *Manager) resyncLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.resync(SourceResync)
		}
	}
}

// resync enqueues every resource of every reconciler implementing Lister.
func (m *Manager) resync(source ChangeSource) {
	m.mu.RLock()
	listers := make(map[ResourceType]Lister)
	for rt, r := range m.reconcilers {
		if l, ok := r.(Lister); ok {
			listers[rt] = l
		}
	}
	m.mu.RUnlock()

	for rt, l := range listers {
		names, err := l.List(m.ctx)
		if err != nil {
			logging.Warn(api.SubsystemReconciler, "Resync of %s failed: %v", rt, err)
			continue
		}
		for _, name := range names {
			m.handleChangeEvent(ChangeEvent{
				Type:      rt,
				Name:      name,
				Operation: OperationUpdate,
				Timestamp: time.Now(),
				Source:    source,
			})
		}
		logging.Debug(api.SubsystemReconciler, "Resync enqueued %d %s resources", len(names), rt)
	}
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()

	logging.Debug(api.SubsystemReconciler, "Worker %d started", id)
	for m.processNextRequest() {
	}
	logging.Debug(api.SubsystemReconciler, "Worker %d shutting down", id)
}

func (m *Manager) processNextRequest() bool {
	req, shutdown := m.queue.Get()
	if shutdown {
		return false
	}
	defer m.queue.Done(req)

	m.processRequest(req)
	return true
}

// processRequest runs one reconcile and decides whether and when the
// request comes back.
func (m *Manager) processRequest(req ReconcileRequest) {
	m.mu.RLock()
	reconciler, ok := m.reconcilers[req.Type]
	timeout := m.config.ReconcileTimeout
	m.mu.RUnlock()

	if !ok {
		logging.Warn(api.SubsystemReconciler, "No reconciler for resource type %s", req.Type)
		m.queue.Forget(req)
		return
	}

	m.updateStatus(req, StateReconciling, "", "")
	logging.Debug(api.SubsystemReconciler, "Reconciling %s (requeues: %d)", req, m.queue.NumRequeues(req))

	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	result := reconciler.Reconcile(ctx, req)
	if result.Error == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.Error = fmt.Errorf("reconciliation timed out after %v", timeout)
	}
	if m.ctx.Err() != nil {
		return
	}

	switch {
	case result.Error != nil:
		m.handleReconcileError(req, result)
	case result.RequeueAfter > 0:
		m.metrics.Observe(req.Type, ResultRequeued)
		m.updateStatus(req, StatePending, "", result.RunID)
		m.queue.Forget(req)
		m.queue.AddAfter(req, result.RequeueAfter)
		logging.Debug(api.SubsystemReconciler, "Requeuing %s after %v", req, result.RequeueAfter)
	case result.Requeue:
		m.metrics.Observe(req.Type, ResultRequeued)
		m.updateStatus(req, StatePending, "", result.RunID)
		m.queue.AddRateLimited(req)
		logging.Debug(api.SubsystemReconciler, "Requeuing %s with backoff", req)
	default:
		m.metrics.Observe(req.Type, ResultSynced)
		m.queue.Forget(req)
		m.updateStatus(req, StateSynced, "", result.RunID)
		logging.Debug(api.SubsystemReconciler, "Reconciled %s", req)
	}
}

func (m *Manager) handleReconcileError(req ReconcileRequest, result ReconcileResult) {
	if m.queue.NumRequeues(req)+1 >= m.config.MaxRetries {
		logging.Error(api.SubsystemReconciler, result.Error, "Giving up on %s after %d attempts", req, m.config.MaxRetries)
		m.metrics.Observe(req.Type, ResultDropped)
		m.queue.Forget(req)
		m.updateStatus(req, StateFailed, result.Error.Error(), result.RunID)
		return
	}

	logging.Warn(api.SubsystemReconciler, "Reconciliation of %s failed: %v", req, result.Error)
	m.metrics.Observe(req.Type, ResultError)
	m.updateStatus(req, StateError, result.Error.Error(), result.RunID)
	m.queue.AddRateLimited(req)
}

func (m *Manager) updateStatus(req ReconcileRequest, state ReconcileState, errMsg, runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := req.String()
	status, ok := m.statusTracker[key]
	if !ok {
		status = &ReconcileStatus{ResourceType: req.Type, Name: req.Name}
		m.statusTracker[key] = status
	}

	status.State = state
	if runID != "" {
		status.LastRunID = runID
	}

	switch state {
	case StateSynced:
		now := time.Now()
		status.LastReconcileTime = &now
		status.LastError = ""
		status.RetryCount = 0
	case StateError:
		status.LastError = errMsg
		status.RetryCount++
	case StateFailed:
		status.LastError = errMsg
	}
}

// Stop cancels in-flight reconciles and waits for the workers. A stopped
// manager cannot be started again.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	detector := m.changeDetector
	m.mu.Unlock()

	logging.Info(api.SubsystemReconciler, "Stopping reconcile manager")

	m.cancelFunc()
	if detector != nil {
		if err := detector.Stop(); err != nil {
			logging.Error(api.SubsystemReconciler, err, "Error stopping change detector")
		}
	}
	m.queue.ShutDown()
	m.wg.Wait()

	logging.Info(api.SubsystemReconciler, "Reconcile manager stopped")
	return nil
}

// GetStatus returns the reconciliation status of a resource.
func (m *Manager) GetStatus(resourceType ResourceType, name string) (ReconcileStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.statusTracker[ReconcileRequest{Type: resourceType, Name: name}.String()]
	if !ok {
		return ReconcileStatus{}, false
	}
	return *status, true
}

// GetAllStatuses returns every tracked status ordered by type and name.
func (m *Manager) GetAllStatuses() []ReconcileStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ReconcileStatus, 0, len(m.statusTracker))
	for _, status := range m.statusTracker {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].ResourceType != statuses[j].ResourceType {
			return statuses[i].ResourceType < statuses[j].ResourceType
		}
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

// TriggerReconcile enqueues a resource as if it had changed.
func (m *Manager) TriggerReconcile(resourceType ResourceType, name string) {
	m.handleChangeEvent(ChangeEvent{
		Type:      resourceType,
		Name:      name,
		Operation: OperationUpdate,
		Timestamp: time.Now(),
		Source:    SourceManual,
	})
}

// IsRunning returns whether the manager is running.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// GetQueueLength returns the number of queued requests.
func (m *Manager) GetQueueLength() int {
	return m.queue.Len()
}
