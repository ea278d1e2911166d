package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"shipyard/internal/api"
	"shipyard/internal/applier"
	"shipyard/internal/events"
	"shipyard/internal/lease"
	"shipyard/internal/metrics"
	"shipyard/internal/template"
	"shipyard/pkg/logging"
)

// ErrShuttingDown is returned by StartSync once Stop has been called.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// Config holds the collaborators and limits of the orchestrator.
type Config struct {
	Instances api.InstanceStore   // Required
	Runs      api.SyncRunStore    // Required
	Templates api.TemplateStore   // Required
	Clusters  api.ClusterRegistry // Required
	Locker    lease.Locker        // Required

	Resolver *template.Resolver     // Optional: defaults to template.NewResolver()
	Metrics  *metrics.Recorder      // Optional
	Events   *events.EventGenerator // Optional: records run outcomes as Kubernetes Events

	RenderWorkers int
	ApplyWorkers  int
	Retry         applier.RetryPolicy

	// RunTimeout bounds a whole sync run. LeaseTTL must outlive it so the
	// lease cannot expire under a running sync.
	RunTimeout time.Duration
	LeaseTTL   time.Duration

	// Now is used for run timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Default limits used when Config leaves them empty.
const (
	DefaultRenderWorkers = 4
	DefaultRunTimeout    = 10 * time.Minute
)

func (c *Config) setDefaults() {
	if c.Resolver == nil {
		c.Resolver = template.NewResolver()
	}
	if c.RenderWorkers <= 0 {
		c.RenderWorkers = DefaultRenderWorkers
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.LeaseTTL <= c.RunTimeout {
		c.LeaseTTL = c.RunTimeout + time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// activeRun tracks a sync run executing in this process.
type activeRun struct {
	instanceUUID string
	cancel       context.CancelCauseFunc
	done         chan struct{}
}

// Orchestrator drives sync runs: it renders every enabled component of an
// instance, plans the changes for the whole instance, applies them and
// records the outcome. At most one run per instance is active at a time.
type Orchestrator struct {
	cfg Config

	// Context for cancellation of every run
	ctx        context.Context
	cancelFunc context.CancelFunc

	mu       sync.Mutex
	active   map[string]*activeRun // run ID -> run
	stopping bool
	wg       sync.WaitGroup
}

// New creates a new orchestrator.
func New(cfg Config) *Orchestrator {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		ctx:        ctx,
		cancelFunc: cancel,
		active:     make(map[string]*activeRun),
	}
}

// errCancelled is the cancellation cause recorded by CancelSync and Stop.
var errCancelled = errors.New("sync cancelled")

// StartSync starts a sync run for the instance and returns its ID. It fails
// with a *api.LockError when the instance already has an active run, and
// with a NotFoundError when the instance does not exist. The run itself
// proceeds in the background.
func (o *Orchestrator) StartSync(ctx context.Context, instanceUUID string) (string, error) {
	inst, err := o.cfg.Instances.GetInstance(ctx, instanceUUID)
	if err != nil {
		return "", err
	}
	if err := inst.Validate(); err != nil {
		return "", fmt.Errorf("invalid instance %s: %w", instanceUUID, err)
	}

	o.mu.Lock()
	stopping := o.stopping
	o.mu.Unlock()
	if stopping {
		return "", ErrShuttingDown
	}

	held, err := o.cfg.Locker.Acquire(ctx, instanceUUID, o.cfg.LeaseTTL)
	if err != nil {
		if api.IsLockError(err) {
			o.cfg.Metrics.LockRejected()
			logging.Info(api.SubsystemOrchestrator, "Sync of instance %s rejected: %v", instanceUUID, err)
		}
		return "", err
	}

	run := newRun(inst, o.cfg.Now())
	if err := o.cfg.Runs.SaveRun(ctx, run); err != nil {
		if relErr := held.Release(context.WithoutCancel(ctx)); relErr != nil {
			logging.Error(api.SubsystemOrchestrator, relErr, "Failed to release lease of instance %s", instanceUUID)
		}
		return "", fmt.Errorf("failed to record sync run: %w", err)
	}

	runCtx, cancelCause := context.WithCancelCause(o.ctx)
	runCtx, cancelTimeout := context.WithTimeout(runCtx, o.cfg.RunTimeout)
	ar := &activeRun{instanceUUID: instanceUUID, cancel: cancelCause, done: make(chan struct{})}

	o.mu.Lock()
	if o.stopping {
		o.mu.Unlock()
		cancelTimeout()
		cancelCause(nil)
		o.abandon(ctx, run, held)
		return "", ErrShuttingDown
	}
	o.active[run.ID] = ar
	o.wg.Add(1)
	o.mu.Unlock()

	o.cfg.Metrics.RunStarted()
	logging.Info(api.SubsystemOrchestrator, "Started sync %s for instance %s", run.ID, instanceUUID)

	go func() {
		defer o.wg.Done()
		defer close(ar.done)
		defer func() {
			o.mu.Lock()
			delete(o.active, run.ID)
			o.mu.Unlock()
		}()
		defer cancelCause(nil)
		defer cancelTimeout()

		o.execute(runCtx, inst, run, held)
	}()

	return run.ID, nil
}

func newRun(inst *api.Instance, now time.Time) *api.SyncRun {
	run := &api.SyncRun{
		ID:           uuid.NewString(),
		InstanceUUID: inst.UUID,
		Status:       api.SyncStatusPending,
		StartedAt:    now,
		Components:   make([]api.ComponentOutcome, 0, len(inst.Components)),
	}
	for _, c := range inst.Components {
		status := api.ComponentStatusPending
		if !c.Enabled {
			status = api.ComponentStatusDisabled
		}
		run.Components = append(run.Components, api.ComponentOutcome{
			UUID:   c.UUID,
			Name:   c.Name,
			Type:   c.Type,
			Status: status,
		})
	}
	return run
}

// abandon closes a recorded run that never started.
func (o *Orchestrator) abandon(ctx context.Context, run *api.SyncRun, held lease.Lease) {
	ctx = context.WithoutCancel(ctx)
	completed := o.cfg.Now()
	run.Status = api.SyncStatusFailed
	run.Error = ErrShuttingDown.Error()
	run.ErrorKind = api.ErrorKindInternal
	run.CompletedAt = &completed
	if err := o.cfg.Runs.SaveRun(ctx, run); err != nil {
		logging.Error(api.SubsystemOrchestrator, err, "Failed to record abandoned sync %s", run.ID)
	}
	if err := held.Release(ctx); err != nil {
		logging.Error(api.SubsystemOrchestrator, err, "Failed to release lease of instance %s", run.InstanceUUID)
	}
}

// GetSyncStatus returns the current state of a run.
func (o *Orchestrator) GetSyncStatus(ctx context.Context, runID string) (*api.SyncRun, error) {
	return o.cfg.Runs.GetRun(ctx, runID)
}

// ListSyncRuns returns the runs of an instance, newest first.
func (o *Orchestrator) ListSyncRuns(ctx context.Context, instanceUUID string) ([]*api.SyncRun, error) {
	return o.cfg.Runs.ListRuns(ctx, instanceUUID)
}

// CancelSync cancels an active run. Actions already started finish; no new
// action starts and the run ends as if its deadline had expired.
func (o *Orchestrator) CancelSync(ctx context.Context, runID string) error {
	o.mu.Lock()
	ar, ok := o.active[runID]
	o.mu.Unlock()
	if ok {
		logging.Info(api.SubsystemOrchestrator, "Cancelling sync %s of instance %s", runID, ar.instanceUUID)
		ar.cancel(errCancelled)
		return nil
	}

	run, err := o.cfg.Runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	return fmt.Errorf("sync run %s is not active (status %s)", runID, run.Status)
}

// Wait blocks until the run is terminal or ctx is done, and returns the
// latest recorded state of the run.
func (o *Orchestrator) Wait(ctx context.Context, runID string) (*api.SyncRun, error) {
	o.mu.Lock()
	ar, ok := o.active[runID]
	o.mu.Unlock()
	if ok {
		select {
		case <-ar.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.cfg.Runs.GetRun(ctx, runID)
}

// ActiveRuns returns the IDs of the runs executing in this process.
func (o *Orchestrator) ActiveRuns() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]string, len(o.active))
	for id, ar := range o.active {
		out[id] = ar.instanceUUID
	}
	return out
}

// Stop cancels every active run and waits for them to record their outcome.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopping = true
	for _, ar := range o.active {
		ar.cancel(errCancelled)
	}
	o.mu.Unlock()

	o.cancelFunc()
	o.wg.Wait()
	logging.Info(api.SubsystemOrchestrator, "Orchestrator stopped")
}

var _ api.SyncService = (*Orchestrator)(nil)
