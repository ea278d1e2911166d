package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"shipyard/internal/api"
	"shipyard/internal/applier"
	"shipyard/internal/cluster"
	"shipyard/internal/events"
	"shipyard/internal/lease"
	"shipyard/internal/metrics"
	"shipyard/internal/store"
	"shipyard/internal/testing/mock"
)

const instanceUUID = "inst-1"

var (
	webDeployment   = api.ResourceKey{Kind: "Deployment", Namespace: "shop", Name: "web"}
	webService      = api.ResourceKey{Kind: "Service", Namespace: "shop", Name: "web"}
	webRoute        = api.ResourceKey{Kind: "HTTPRoute", Namespace: "shop", Name: "web"}
	jobsDeployment  = api.ResourceKey{Kind: "Deployment", Namespace: "shop", Name: "jobs"}
	nightlyCronJob  = api.ResourceKey{Kind: "CronJob", Namespace: "shop", Name: "nightly"}
	httpGateway     = api.ClusterGatewayConfig{Reference: &api.GatewayReference{Namespace: "gateway-system", Name: "public"}, RouteKinds: []string{api.RouteKindHTTP}}
	everyShopObject = []string{
		"CronJob/shop/nightly",
		"Deployment/shop/jobs",
		"Deployment/shop/web",
		"HTTPRoute/shop/web",
		"Service/shop/web",
	}
)

func shopInstance() api.Instance {
	return api.Instance{
		UUID:        instanceUUID,
		Application: api.Application{UUID: "app-1", Name: "shop"},
		Environment: api.Environment{UUID: "env-1", Name: "prod", Settings: map[string]string{"LOG_LEVEL": "info"}},
		Image:       "registry.example.com/shop",
		Version:     "1.0.0",
		Components: []api.Component{
			{
				UUID: "c-web", Name: "web", Type: api.ComponentTypeWebapp, Enabled: true, Visibility: api.VisibilityPublic,
				Settings: api.ComponentSettings{Webapp: &api.WebappSettings{
					Exposure: api.Exposure{Protocol: api.ProtocolHTTP, Port: 8080},
					URL:      "https://shop.example.com",
				}},
			},
			{
				UUID: "c-jobs", Name: "jobs", Type: api.ComponentTypeWorker, Enabled: true,
				Settings: api.ComponentSettings{Worker: &api.WorkerSettings{Replicas: 2}},
			},
			{
				UUID: "c-nightly", Name: "nightly", Type: api.ComponentTypeCron, Enabled: true,
				Settings: api.ComponentSettings{Cron: &api.CronSettings{Schedule: "0 3 * * *"}},
			},
		},
	}
}

type testEnv struct {
	cluster  *mock.Cluster
	store    *store.MemoryStore
	registry *cluster.StaticRegistry
	metrics  *metrics.Recorder
	orch     *Orchestrator
}

func newTestEnv(t *testing.T, gw api.ClusterGatewayConfig, configure ...func(*Config)) *testEnv {
	t.Helper()
	env := &testEnv{
		cluster: mock.NewCluster(),
		store:   store.NewMemoryStore(),
		metrics: metrics.NewRecorder(),
	}
	env.registry = &cluster.StaticRegistry{Target: api.ClusterTarget{Name: "test", Client: env.cluster, Gateway: gw}}
	env.store.PutInstance(shopInstance())

	cfg := Config{
		Instances:    env.store,
		Runs:         env.store,
		Templates:    store.NewTemplateStore(),
		Clusters:     env.registry,
		Locker:       lease.NewMemoryLocker(time.Now),
		Metrics:      env.metrics,
		ApplyWorkers: 4,
		Retry:        applier.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		RunTimeout:   10 * time.Second,
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	env.orch = New(cfg)
	t.Cleanup(env.orch.Stop)
	return env
}

func (e *testEnv) sync(t *testing.T) *api.SyncRun {
	t.Helper()
	id, err := e.orch.StartSync(context.Background(), instanceUUID)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := e.orch.Wait(ctx, id)
	require.NoError(t, err)
	require.True(t, run.Status.Terminal(), "run %s is %s", id, run.Status)
	return run
}

func (e *testEnv) update(t *testing.T, fn func(*api.Instance)) {
	t.Helper()
	inst, err := e.store.GetInstance(context.Background(), instanceUUID)
	require.NoError(t, err)
	fn(inst)
	e.store.PutInstance(*inst)
}

func (e *testEnv) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	e.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func outcome(t *testing.T, run *api.SyncRun, name string) *api.ComponentOutcome {
	t.Helper()
	o, ok := run.Component(name)
	require.True(t, ok, "no outcome for component %s", name)
	return o
}

func TestSyncFromScratch(t *testing.T) {
	env := newTestEnv(t, httpGateway)

	run := env.sync(t)
	assert.Equal(t, api.SyncStatusSucceeded, run.Status)
	assert.Empty(t, run.Error)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, &api.PlanSummary{Creates: 5}, run.Plan)

	assert.Equal(t, everyShopObject, env.cluster.Keys())
	assert.True(t, env.cluster.HasNamespace("shop"))

	require.Len(t, run.Actions, 1, "the namespace action belongs to no component")
	assert.Equal(t, api.ActionEnsureNamespace, run.Actions[0].Verb)

	web := outcome(t, run, "web")
	assert.Equal(t, api.ComponentStatusSucceeded, web.Status)
	assert.Equal(t, api.VisibilityPublic, web.EffectiveVisibility)
	assert.Equal(t, api.RouteKindHTTP, web.RouteKind)
	assert.ElementsMatch(t, []api.ResourceKey{webDeployment, webService, webRoute}, web.AppliedResources)
	assert.Empty(t, web.Warnings)

	for _, name := range []string{"jobs", "nightly"} {
		o := outcome(t, run, name)
		assert.Equal(t, api.ComponentStatusSucceeded, o.Status, name)
		assert.Equal(t, api.VisibilityCluster, o.EffectiveVisibility, name)
	}

	obj, ok := env.cluster.Object(webService)
	require.True(t, ok)
	assert.Equal(t, api.ManagedByValue, obj.GetLabels()[api.LabelManagedBy])
	assert.Equal(t, instanceUUID, obj.GetLabels()[api.LabelInstance])
	assert.Equal(t, "c-web", obj.GetLabels()[api.LabelComponent])

	inv, err := env.store.GetInventory(context.Background(), instanceUUID)
	require.NoError(t, err)
	assert.Len(t, inv.Components["c-web"], 3)
	assert.Len(t, inv.Components["c-jobs"], 1)
	assert.Len(t, inv.Components["c-nightly"], 1)

	body := env.scrape(t)
	assert.Contains(t, body, `shipyard_sync_runs_total{status="Succeeded"} 1`)
	assert.Contains(t, body, `shipyard_apply_actions_total{outcome="Applied",verb="create"} 5`)
}

func TestSyncIsIdempotent(t *testing.T) {
	env := newTestEnv(t, httpGateway)
	first := env.sync(t)
	require.Equal(t, api.SyncStatusSucceeded, first.Status)

	env.cluster.ResetCalls()
	second := env.sync(t)

	assert.Equal(t, api.SyncStatusSucceeded, second.Status)
	assert.Empty(t, env.cluster.MutatingCalls(), "a second sync without changes must not write")
	assert.Equal(t, &api.PlanSummary{Unchanged: 5}, second.Plan)
	assert.Empty(t, second.Actions)
	for _, o := range second.Components {
		assert.Equal(t, api.ComponentStatusSucceeded, o.Status, o.Name)
		assert.Empty(t, o.Actions, o.Name)
	}
	assert.Len(t, outcome(t, second, "web").AppliedResources, 3, "unchanged resources are still reported")
}

func TestSyncAppliesChanges(t *testing.T) {
	env := newTestEnv(t, httpGateway)
	env.sync(t)

	env.update(t, func(inst *api.Instance) { inst.Version = "1.1.0" })
	env.cluster.ResetCalls()
	run := env.sync(t)

	assert.Equal(t, api.SyncStatusSucceeded, run.Status)
	assert.Equal(t, 3, run.Plan.Updates, "every workload carries the image tag")
	for _, call := range env.cluster.MutatingCalls() {
		assert.Equal(t, mock.VerbApply, call.Verb)
	}

	obj, _ := env.cluster.Object(jobsDeployment)
	containers, _, _ := unstructured.NestedSlice(obj.Object, "spec", "template", "spec", "containers")
	require.Len(t, containers, 1)
	assert.Equal(t, "registry.example.com/shop:1.1.0", containers[0].(map[string]interface{})["image"])
}

func TestSyncGarbageCollects(t *testing.T) {
	env := newTestEnv(t, httpGateway)
	env.sync(t)

	t.Run("disabled component", func(t *testing.T) {
		env.update(t, func(inst *api.Instance) { inst.Components[2].Enabled = false })
		run := env.sync(t)

		assert.Equal(t, api.SyncStatusSucceeded, run.Status)
		assert.NotContains(t, env.cluster.Keys(), nightlyCronJob.String())

		nightly := outcome(t, run, "nightly")
		assert.Equal(t, api.ComponentStatusDisabled, nightly.Status)
		require.Len(t, nightly.Actions, 1)
		assert.Equal(t, api.ActionDelete, nightly.Actions[0].Verb)
		assert.Equal(t, api.OutcomeApplied, nightly.Actions[0].Outcome)

		inv, _ := env.store.GetInventory(context.Background(), instanceUUID)
		assert.NotContains(t, inv.Components, "c-nightly")
	})

	t.Run("removed component", func(t *testing.T) {
		env.update(t, func(inst *api.Instance) { inst.Components = inst.Components[:1] })
		run := env.sync(t)

		assert.Equal(t, api.SyncStatusSucceeded, run.Status)
		assert.Equal(t, []string{"Deployment/shop/web", "HTTPRoute/shop/web", "Service/shop/web"}, env.cluster.Keys())
		require.Len(t, run.Actions, 1, "deletes of removed components stay on the run")
		assert.Equal(t, jobsDeployment, run.Actions[0].Key)
	})
}

func TestSyncCapabilityDowngrade(t *testing.T) {
	tests := []struct {
		name string
		gw   api.ClusterGatewayConfig
	}{
		{name: "no gateway", gw: api.ClusterGatewayConfig{RouteKinds: []string{api.RouteKindHTTP}}},
		{name: "route kind missing", gw: api.ClusterGatewayConfig{Reference: httpGateway.Reference, RouteKinds: []string{api.RouteKindTCP}}},
		{name: "gateway discovery failed", gw: api.ClusterGatewayConfig{DiscoveryError: "discovery down"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.gw)
			run := env.sync(t)

			assert.Equal(t, api.SyncStatusSucceeded, run.Status, "a downgrade is a warning")
			web := outcome(t, run, "web")
			assert.Equal(t, api.ComponentStatusSucceeded, web.Status)
			assert.Equal(t, api.VisibilityPublic, web.RequestedVisibility)
			assert.Equal(t, api.VisibilityCluster, web.EffectiveVisibility)
			assert.True(t, web.Downgraded())
			require.Len(t, web.Warnings, 1)
			assert.NotContains(t, env.cluster.Keys(), webRoute.String())

			inst, err := env.store.GetInstance(context.Background(), instanceUUID)
			require.NoError(t, err)
			assert.Equal(t, api.VisibilityPublic, inst.Components[0].Visibility, "the component keeps its requested visibility")

			assert.Contains(t, env.scrape(t), "shipyard_sync_visibility_downgrades_total 1")
		})
	}

	t.Run("gateway loses the route kind", func(t *testing.T) {
		env := newTestEnv(t, httpGateway)
		env.sync(t)
		require.Contains(t, env.cluster.Keys(), webRoute.String())

		env.registry.Target.Gateway = api.ClusterGatewayConfig{}
		run := env.sync(t)

		assert.Equal(t, api.SyncStatusSucceeded, run.Status)
		assert.NotContains(t, env.cluster.Keys(), webRoute.String(), "the stale route is removed")
		assert.Contains(t, env.cluster.Keys(), webService.String())
	})
}

func TestSyncMutualExclusion(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	env := newTestEnv(t, httpGateway)
	env.cluster.BeforeCall = func(ctx context.Context, verb string, _ api.ResourceKey) {
		if verb != mock.VerbEnsureNamespace {
			return
		}
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
	}

	ctx := context.Background()
	first, err := env.orch.StartSync(ctx, instanceUUID)
	require.NoError(t, err)
	<-entered

	_, err = env.orch.StartSync(ctx, instanceUUID)
	var lockErr *api.LockError
	require.True(t, errors.As(err, &lockErr), "expected LockError, got %v", err)
	assert.Equal(t, instanceUUID, lockErr.InstanceUUID)

	runs, err := env.orch.ListSyncRuns(ctx, instanceUUID)
	require.NoError(t, err)
	assert.Len(t, runs, 1, "a rejected request records nothing")
	assert.Equal(t, map[string]string{first: instanceUUID}, env.orch.ActiveRuns())

	close(release)
	run, err := env.orch.Wait(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, api.SyncStatusSucceeded, run.Status)
	assert.Empty(t, env.orch.ActiveRuns())

	env.cluster.BeforeCall = nil
	again := env.sync(t)
	assert.Equal(t, api.SyncStatusSucceeded, again.Status, "the lease is released when a run ends")

	assert.Contains(t, env.scrape(t), "shipyard_sync_lock_rejections_total 1")
}

func TestSyncPartialFailureIsolation(t *testing.T) {
	forbidden := apierrors.NewForbidden(schema.GroupResource{Group: "apps", Resource: "deployments"}, "jobs", errors.New("quota"))

	t.Run("failed action", func(t *testing.T) {
		env := newTestEnv(t, httpGateway)
		env.cluster.FailOn(mock.VerbApply, jobsDeployment, forbidden, -1)

		run := env.sync(t)
		assert.Equal(t, api.SyncStatusPartiallyFailed, run.Status)

		jobs := outcome(t, run, "jobs")
		assert.Equal(t, api.ComponentStatusFailed, jobs.Status)
		assert.Equal(t, api.ErrorKindApply, jobs.ErrorKind)
		assert.Contains(t, jobs.Error, "permanent")
		require.Len(t, jobs.Actions, 1)
		assert.Equal(t, 1, jobs.Actions[0].Attempts, "permanent failures are not retried")

		assert.Equal(t, api.ComponentStatusSucceeded, outcome(t, run, "web").Status)
		assert.Equal(t, api.ComponentStatusSucceeded, outcome(t, run, "nightly").Status)
		assert.NotContains(t, env.cluster.Keys(), jobsDeployment.String())

		inv, _ := env.store.GetInventory(context.Background(), instanceUUID)
		assert.NotContains(t, inv.Components, "c-jobs", "failed creates are not recorded")
	})

	t.Run("dependents are skipped", func(t *testing.T) {
		env := newTestEnv(t, httpGateway)
		env.cluster.FailOn(mock.VerbApply, webService, apierrors.NewBadRequest("bad port"), -1)

		run := env.sync(t)
		assert.Equal(t, api.SyncStatusPartiallyFailed, run.Status)

		web := outcome(t, run, "web")
		assert.Equal(t, api.ComponentStatusFailed, web.Status)
		outcomes := map[api.ResourceKey]api.ActionResult{}
		for _, r := range web.Actions {
			outcomes[r.Key] = r
		}
		assert.Equal(t, api.OutcomeFailed, outcomes[webService].Outcome)
		assert.Equal(t, api.OutcomeSkipped, outcomes[webRoute].Outcome)
		assert.Equal(t, api.SkipReasonDependencyFailed, outcomes[webRoute].Reason)
		assert.Equal(t, []string{"CronJob/shop/nightly", "Deployment/shop/jobs"}, env.cluster.Keys())
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		env := newTestEnv(t, httpGateway)
		env.cluster.FailOn(mock.VerbApply, nightlyCronJob, apierrors.NewTooManyRequests("slow down", 0), 2)

		run := env.sync(t)
		assert.Equal(t, api.SyncStatusSucceeded, run.Status)
		nightly := outcome(t, run, "nightly")
		require.Len(t, nightly.Actions, 1)
		assert.Equal(t, 3, nightly.Actions[0].Attempts)
	})

	t.Run("every component failing fails the run", func(t *testing.T) {
		env := newTestEnv(t, httpGateway)
		env.cluster.FailOn(mock.VerbEnsureNamespace, api.ResourceKey{Kind: "Namespace", Name: "shop"}, forbidden, -1)

		run := env.sync(t)
		assert.Equal(t, api.SyncStatusFailed, run.Status)
		assert.Empty(t, env.cluster.Keys())
		for _, o := range run.Components {
			assert.Equal(t, api.ComponentStatusFailed, o.Status, o.Name)
		}
	})
}

func TestSyncRenderFailureKeepsResources(t *testing.T) {
	env := newTestEnv(t, httpGateway)
	env.sync(t)

	env.update(t, func(inst *api.Instance) {
		inst.Components[2].Settings.Cron.Schedule = "every night"
		inst.Version = "2.0.0"
	})
	run := env.sync(t)

	assert.Equal(t, api.SyncStatusPartiallyFailed, run.Status)
	nightly := outcome(t, run, "nightly")
	assert.Equal(t, api.ComponentStatusFailed, nightly.Status)
	assert.Equal(t, api.ErrorKindRender, nightly.ErrorKind)
	assert.Empty(t, nightly.Actions)

	assert.Contains(t, env.cluster.Keys(), nightlyCronJob.String(), "a failed render never deletes")
	obj, _ := env.cluster.Object(nightlyCronJob)
	containers, _, _ := unstructured.NestedSlice(obj.Object, "spec", "jobTemplate", "spec", "template", "spec", "containers")
	assert.Equal(t, "registry.example.com/shop:1.0.0", containers[0].(map[string]interface{})["image"], "nor updates")

	inv, _ := env.store.GetInventory(context.Background(), instanceUUID)
	assert.Len(t, inv.Components["c-nightly"], 1, "held components keep their inventory")
}

func TestSyncOwnershipSafety(t *testing.T) {
	foreignService := &unstructured.Unstructured{}
	foreignService.SetAPIVersion("v1")
	foreignService.SetKind("Service")
	foreignService.SetNamespace("shop")
	foreignService.SetName("web")
	foreignService.SetLabels(map[string]string{"team": "platform"})

	manual := &unstructured.Unstructured{}
	manual.SetAPIVersion("v1")
	manual.SetKind("ConfigMap")
	manual.SetNamespace("shop")
	manual.SetName("manual")

	t.Run("collision aborts before any write", func(t *testing.T) {
		env := newTestEnv(t, httpGateway)
		env.cluster.Seed(foreignService, manual)

		run := env.sync(t)
		assert.Equal(t, api.SyncStatusFailed, run.Status)
		assert.Equal(t, api.ErrorKindPlan, run.ErrorKind)
		assert.Contains(t, run.Error, "Service/shop/web")
		assert.Empty(t, env.cluster.MutatingCalls())
		for _, o := range run.Components {
			assert.Equal(t, api.ComponentStatusFailed, o.Status, o.Name)
		}

		obj, _ := env.cluster.Object(webService)
		assert.Equal(t, "platform", obj.GetLabels()["team"])
	})

	t.Run("unowned objects are left alone", func(t *testing.T) {
		env := newTestEnv(t, httpGateway)
		env.cluster.Seed(manual)

		env.sync(t)
		env.update(t, func(inst *api.Instance) { inst.Components = nil })
		run := env.sync(t)

		assert.Equal(t, api.SyncStatusSucceeded, run.Status)
		assert.Equal(t, []string{"ConfigMap/shop/manual"}, env.cluster.Keys())
		for _, call := range env.cluster.MutatingCalls() {
			assert.NotEqual(t, "manual", call.Key.Name)
		}
	})
}

func TestSyncDeadline(t *testing.T) {
	env := newTestEnv(t, httpGateway, func(c *Config) { c.RunTimeout = 200 * time.Millisecond })
	env.cluster.BeforeCall = func(ctx context.Context, verb string, key api.ResourceKey) {
		if key == webService {
			<-ctx.Done()
		}
	}

	run := env.sync(t)
	assert.Equal(t, api.SyncStatusPartiallyFailed, run.Status, "the namespace and other components were applied")
	assert.Equal(t, api.ErrorKindDeadline, run.ErrorKind)
	assert.Equal(t, "sync deadline exceeded", run.Error)
	assert.Equal(t, api.ComponentStatusFailed, outcome(t, run, "web").Status)
	assert.Equal(t, api.ComponentStatusSucceeded, outcome(t, run, "jobs").Status)
	assert.Contains(t, env.cluster.Keys(), jobsDeployment.String(), "applied resources stay in place")
}

func TestCancelSync(t *testing.T) {
	env := newTestEnv(t, httpGateway)
	entered := make(chan struct{}, 1)
	env.cluster.BeforeCall = func(ctx context.Context, verb string, _ api.ResourceKey) {
		if verb == mock.VerbEnsureNamespace {
			entered <- struct{}{}
			<-ctx.Done()
		}
	}

	ctx := context.Background()
	id, err := env.orch.StartSync(ctx, instanceUUID)
	require.NoError(t, err)
	<-entered
	require.NoError(t, env.orch.CancelSync(ctx, id))

	run, err := env.orch.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, api.SyncStatusFailed, run.Status)
	assert.Equal(t, "sync cancelled", run.Error)
	assert.Empty(t, env.cluster.Keys())

	assert.ErrorContains(t, env.orch.CancelSync(ctx, id), "is not active")
	assert.True(t, api.IsNotFound(env.orch.CancelSync(ctx, "missing")))
}

func TestStartSyncErrors(t *testing.T) {
	env := newTestEnv(t, httpGateway)
	ctx := context.Background()

	_, err := env.orch.StartSync(ctx, "unknown")
	assert.True(t, api.IsNotFound(err))

	env.update(t, func(inst *api.Instance) { inst.Components[1].Name = "web" })
	_, err = env.orch.StartSync(ctx, instanceUUID)
	assert.ErrorContains(t, err, "duplicate component name")

	env.orch.Stop()
	env.update(t, func(inst *api.Instance) { inst.Components[1].Name = "jobs" })
	_, err = env.orch.StartSync(ctx, instanceUUID)
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestSyncClusterResolutionFailure(t *testing.T) {
	env := newTestEnv(t, httpGateway, func(c *Config) {
		c.Clusters = cluster.NewRegistry(nil, nil)
	})
	run := env.sync(t)
	assert.Equal(t, api.SyncStatusFailed, run.Status)
	assert.Contains(t, run.Error, "no cluster configured for environment prod")
}

func TestSyncRecordsEvents(t *testing.T) {
	env := newTestEnv(t, api.ClusterGatewayConfig{}, func(c *Config) {
		c.Events = events.NewEventGenerator("test")
	})
	run := env.sync(t)
	require.Equal(t, api.SyncStatusSucceeded, run.Status)

	prefix := "shop." + strings.ToLower(run.ID)
	runEvent, ok := env.cluster.Object(api.ResourceKey{Kind: "Event", Namespace: "shop", Name: prefix + ".0"})
	require.True(t, ok, "run event recorded")
	assert.Equal(t, string(events.ReasonSyncSucceeded), runEvent.Object["reason"])
	assert.Equal(t, run.ID, runEvent.GetLabels()[events.LabelRun])

	downgrade, ok := env.cluster.Object(api.ResourceKey{Kind: "Event", Namespace: "shop", Name: prefix + ".1"})
	require.True(t, ok, "downgrade event recorded")
	assert.Equal(t, string(events.ReasonVisibilityDowngraded), downgrade.Object["reason"])
	assert.Contains(t, downgrade.Object["message"], "Component web")

	env.cluster.ResetCalls()
	again := env.sync(t)
	assert.Equal(t, api.SyncStatusSucceeded, again.Status)
	for _, call := range env.cluster.MutatingCalls() {
		assert.Equal(t, "Event", call.Key.Kind, "only events are written by an idempotent sync")
	}
}

func TestSyncWithoutClusterRecordsNoEvents(t *testing.T) {
	env := newTestEnv(t, httpGateway, func(c *Config) {
		c.Clusters = cluster.NewRegistry(nil, nil)
		c.Events = events.NewEventGenerator("test")
	})
	run := env.sync(t)
	assert.Equal(t, api.SyncStatusFailed, run.Status)
	assert.Empty(t, env.cluster.Calls())
}

func TestEmptyInstanceSucceeds(t *testing.T) {
	env := newTestEnv(t, httpGateway)
	env.update(t, func(inst *api.Instance) {
		for i := range inst.Components {
			inst.Components[i].Enabled = false
		}
	})
	run := env.sync(t)
	assert.Equal(t, api.SyncStatusSucceeded, run.Status)
	assert.Empty(t, env.cluster.MutatingCalls())
	for _, o := range run.Components {
		assert.Equal(t, api.ComponentStatusDisabled, o.Status)
	}
}

func TestListSyncRuns(t *testing.T) {
	env := newTestEnv(t, httpGateway)
	first := env.sync(t)
	second := env.sync(t)

	runs, err := env.orch.ListSyncRuns(context.Background(), instanceUUID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)

	status, err := env.orch.GetSyncStatus(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Status, status.Status)
}

func TestPlanPreview(t *testing.T) {
	env := newTestEnv(t, api.ClusterGatewayConfig{})
	ctx := context.Background()

	preview, err := env.orch.Plan(ctx, instanceUUID)
	require.NoError(t, err)
	assert.Equal(t, "test", preview.Cluster)
	require.Len(t, preview.Actions, 5, "namespace plus four creates")
	assert.Equal(t, api.ActionEnsureNamespace, preview.Actions[0].Verb)
	assert.Empty(t, env.cluster.MutatingCalls(), "planning never writes")
	assert.True(t, outcome(t, &api.SyncRun{Components: preview.Components}, "web").Downgraded())

	env.sync(t)
	env.update(t, func(inst *api.Instance) { inst.Components[1].Settings.Worker.Replicas = 5 })
	preview, err = env.orch.Plan(ctx, instanceUUID)
	require.NoError(t, err)
	require.Len(t, preview.Actions, 1)
	assert.Equal(t, api.ActionUpdate, preview.Actions[0].Verb)
	assert.Contains(t, preview.Actions[0].Patch, `"replicas":5`)
	if diff := cmp.Diff([]api.ResourceKey{webDeployment, webService, nightlyCronJob}, preview.Unchanged); diff != "" {
		t.Errorf("unchanged keys mismatch (-want +got):\n%s", diff)
	}

	runs, _ := env.orch.ListSyncRuns(ctx, instanceUUID)
	assert.Len(t, runs, 1, "planning records no run")
}
