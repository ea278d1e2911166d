package applier

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"shipyard/internal/api"
	"shipyard/internal/planner"
	"shipyard/pkg/logging"
)

// Recorder receives action telemetry. A nil Recorder is allowed.
type Recorder interface {
	ActionCompleted(verb api.ActionVerb, outcome api.ActionOutcome, attempts int)
	ActionRetried(verb api.ActionVerb)
}

// ExecutorConfig tunes an Executor.
type ExecutorConfig struct {
	// Workers bounds the number of concurrent cluster calls.
	Workers int
	Retry   RetryPolicy
}

// Executor applies a plan to one cluster. Actions run as soon as everything
// they depend on has been applied; independent actions run in parallel. All
// deletes wait until every create, update and namespace action is finished.
type Executor struct {
	client   api.ClusterClient
	config   ExecutorConfig
	recorder Recorder
}

// NewExecutor creates an executor for client.
func NewExecutor(client api.ClusterClient, config ExecutorConfig, recorder Recorder) *Executor {
	if config.Workers < 1 {
		config.Workers = 4
	}
	if config.Retry.MaxAttempts < 1 {
		config.Retry = DefaultRetryPolicy()
	}
	return &Executor{client: client, config: config, recorder: recorder}
}

// Execute runs every action of plan and returns one result per action in plan
// order. An action whose dependency failed or was skipped is skipped. Once
// ctx is done no further action starts.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan) []api.ActionResult {
	run := &execution{
		executor: e,
		results:  make(map[string]*api.ActionResult, len(plan.Actions)),
		inPlan:   make(map[string]bool, len(plan.Actions)),
	}
	var applies, deletes []planner.Action
	for _, a := range plan.Actions {
		run.inPlan[a.ID] = true
		if a.Verb == api.ActionDelete {
			deletes = append(deletes, a)
		} else {
			applies = append(applies, a)
		}
	}

	run.phase(ctx, applies)
	run.phase(ctx, deletes)

	out := make([]api.ActionResult, 0, len(plan.Actions))
	for _, a := range plan.Actions {
		out = append(out, *run.results[a.ID])
	}
	return out
}

// execution is the state of one Execute call.
type execution struct {
	executor *Executor

	mu      sync.Mutex
	results map[string]*api.ActionResult
	inPlan  map[string]bool
}

func (x *execution) result(id string) (*api.ActionResult, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	r, ok := x.results[id]
	return r, ok
}

func (x *execution) record(r *api.ActionResult) {
	x.mu.Lock()
	x.results[r.ActionID] = r
	x.mu.Unlock()
}

// phase runs actions honoring their dependencies. Dependencies on actions of
// an earlier phase are already settled; dependencies outside the plan are
// ignored.
func (x *execution) phase(ctx context.Context, actions []planner.Action) {
	if len(actions) == 0 {
		return
	}

	byID := make(map[string]planner.Action, len(actions))
	for _, a := range actions {
		byID[a.ID] = a
	}
	waiting := make(map[string]int, len(actions))
	dependents := make(map[string][]string)
	for _, a := range actions {
		for _, dep := range a.DependsOn {
			if _, samePhase := byID[dep]; samePhase {
				waiting[a.ID]++
				dependents[dep] = append(dependents[dep], a.ID)
			}
		}
	}

	// Every action reports exactly once, so the buffer never blocks a worker.
	done := make(chan string, len(actions))
	var g errgroup.Group
	g.SetLimit(x.executor.config.Workers)

	schedule := func(a planner.Action) {
		if x.dependencyFailed(a) {
			reason := api.SkipReasonDependencyFailed
			if ctx.Err() != nil {
				reason = api.SkipReasonDeadline
			}
			x.record(skipped(a, reason))
			done <- a.ID
			return
		}
		if ctx.Err() != nil {
			x.record(skipped(a, api.SkipReasonDeadline))
			done <- a.ID
			return
		}
		g.Go(func() error {
			x.record(x.executor.run(ctx, a))
			done <- a.ID
			return nil
		})
	}

	for _, a := range actions {
		if waiting[a.ID] == 0 {
			schedule(a)
		}
	}
	for pending := len(actions); pending > 0; pending-- {
		id := <-done
		for _, next := range dependents[id] {
			waiting[next]--
			if waiting[next] == 0 {
				schedule(byID[next])
			}
		}
	}
	_ = g.Wait()
}

func (x *execution) dependencyFailed(a planner.Action) bool {
	for _, dep := range a.DependsOn {
		if !x.inPlan[dep] {
			continue
		}
		r, ok := x.result(dep)
		if !ok || r.Outcome != api.OutcomeApplied {
			return true
		}
	}
	return false
}

func skipped(a planner.Action, reason string) *api.ActionResult {
	r := newResult(a)
	r.Outcome = api.OutcomeSkipped
	r.Reason = reason
	return r
}

func newResult(a planner.Action) *api.ActionResult {
	r := &api.ActionResult{
		ActionID:      a.ID,
		Verb:          a.Verb,
		Key:           a.Key,
		APIVersion:    a.APIVersion,
		ComponentUUID: a.ComponentUUID,
	}
	if a.Desired != nil {
		r.Digest = a.Desired.Digest
	}
	return r
}

// run performs one action with retries.
func (e *Executor) run(ctx context.Context, a planner.Action) *api.ActionResult {
	r := newResult(a)
	onRetry := func(attempt int, err error) {
		logging.Debug(api.SubsystemApplier, "Retrying %s after attempt %d: %v", a.ID, attempt, err)
		if e.recorder != nil {
			e.recorder.ActionRetried(a.Verb)
		}
	}

	attempts, err := e.config.Retry.do(ctx, onRetry, func(ctx context.Context) error {
		return e.call(ctx, a)
	})
	r.Attempts = attempts
	if err != nil {
		applyErr := &api.ApplyError{Verb: a.Verb, Key: a.Key, Attempts: attempts, Transient: IsTransient(err), Err: err}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			applyErr.Transient = true
		}
		r.Outcome = api.OutcomeFailed
		r.Error = applyErr.Error()
		logging.Warn(api.SubsystemApplier, "Action %s failed: %v", a.ID, applyErr)
	} else {
		r.Outcome = api.OutcomeApplied
		logging.Debug(api.SubsystemApplier, "Action %s applied after %d attempt(s)", a.ID, attempts)
	}
	if e.recorder != nil {
		e.recorder.ActionCompleted(a.Verb, r.Outcome, attempts)
	}
	return r
}

func (e *Executor) call(ctx context.Context, a planner.Action) error {
	switch a.Verb {
	case api.ActionEnsureNamespace:
		created, err := e.client.EnsureNamespace(ctx, a.Key.Name)
		if err == nil && created {
			logging.Info(api.SubsystemApplier, "Created namespace %s", a.Key.Name)
		}
		return err
	case api.ActionCreate, api.ActionUpdate:
		if a.Desired == nil || a.Desired.Object == nil {
			return errors.New("action has no desired object")
		}
		_, err := e.client.Apply(ctx, a.Desired.Object.DeepCopy())
		return err
	case api.ActionDelete:
		err := e.client.Delete(ctx, schema.FromAPIVersionAndKind(a.APIVersion, a.Key.Kind), a.Key)
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	return errors.New("unknown action verb " + string(a.Verb))
}
