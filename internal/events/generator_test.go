package events

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipyard/internal/api"
	"shipyard/internal/testing/mock"
)

func terminalRun(status api.SyncStatus, components ...api.ComponentOutcome) *api.SyncRun {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	completed := started.Add(3 * time.Second)
	return &api.SyncRun{
		ID:           "01JRUN",
		InstanceUUID: "inst-1",
		Status:       status,
		StartedAt:    started,
		CompletedAt:  &completed,
		Components:   components,
		Plan:         &api.PlanSummary{Creates: 2, Updates: 1},
	}
}

func TestEventsFor(t *testing.T) {
	web := api.ComponentOutcome{Name: "web", Status: api.ComponentStatusSucceeded}
	failed := api.ComponentOutcome{Name: "jobs", Status: api.ComponentStatusFailed, Error: "render failed"}
	downgraded := api.ComponentOutcome{
		Name:                "api",
		Status:              api.ComponentStatusSucceeded,
		RequestedVisibility: api.VisibilityPublic,
		EffectiveVisibility: api.VisibilityCluster,
	}

	tests := []struct {
		name    string
		run     *api.SyncRun
		reasons []EventReason
		types   []EventType
	}{
		{
			name:    "succeeded",
			run:     terminalRun(api.SyncStatusSucceeded, web),
			reasons: []EventReason{ReasonSyncSucceeded},
			types:   []EventType{EventTypeNormal},
		},
		{
			name:    "partially failed",
			run:     terminalRun(api.SyncStatusPartiallyFailed, web, failed),
			reasons: []EventReason{ReasonSyncPartiallyFailed, ReasonComponentFailed},
			types:   []EventType{EventTypeWarning, EventTypeWarning},
		},
		{
			name:    "succeeded with downgrade",
			run:     terminalRun(api.SyncStatusSucceeded, web, downgraded),
			reasons: []EventReason{ReasonSyncSucceeded, ReasonVisibilityDowngraded},
			types:   []EventType{EventTypeNormal, EventTypeWarning},
		},
		{
			name:    "failed",
			run:     terminalRun(api.SyncStatusFailed),
			reasons: []EventReason{ReasonSyncFailed},
			types:   []EventType{EventTypeWarning},
		},
	}

	gen := NewEventGenerator("test-host")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evs := gen.EventsFor("prod", "shop", tt.run)
			var reasons []EventReason
			var types []EventType
			for _, ev := range evs {
				reasons = append(reasons, ev.Reason)
				types = append(types, ev.Type)
				assert.NotEmpty(t, ev.Message)
			}
			assert.Equal(t, tt.reasons, reasons)
			assert.Equal(t, tt.types, types)
		})
	}
}

func TestEventsForMessages(t *testing.T) {
	gen := NewEventGenerator("test-host")

	evs := gen.EventsFor("prod", "shop", terminalRun(api.SyncStatusSucceeded))
	require.Len(t, evs, 1)
	assert.Equal(t, "Sync 01JRUN of instance inst-1 succeeded on cluster prod (2 created, 1 updated, 0 deleted) in 3s", evs[0].Message)

	evs = gen.EventsFor("prod", "shop", terminalRun(api.SyncStatusPartiallyFailed,
		api.ComponentOutcome{Name: "jobs", Status: api.ComponentStatusFailed, Error: "boom"},
		api.ComponentOutcome{Name: "web", Status: api.ComponentStatusFailed},
	))
	require.Len(t, evs, 3)
	assert.Equal(t, "Sync 01JRUN of instance inst-1 partially failed: components jobs, web failed", evs[0].Message)
	assert.Equal(t, "Component jobs of instance inst-1 failed in sync 01JRUN: boom", evs[1].Message)
	assert.Equal(t, "Component web of instance inst-1 failed in sync 01JRUN", evs[2].Message)

	run := terminalRun(api.SyncStatusFailed)
	run.Error = "cluster unreachable"
	evs = gen.EventsFor("prod", "shop", run)
	assert.Equal(t, "Sync 01JRUN of instance inst-1 failed: cluster unreachable", evs[0].Message)
}

func TestMessageTemplateEngine(t *testing.T) {
	engine := NewMessageTemplateEngine()
	for reason := range defaultTemplates {
		assert.True(t, engine.HasTemplate(reason), "default template for %s", reason)
	}

	t.Run("custom template with sprig", func(t *testing.T) {
		require.NoError(t, engine.SetTemplate(ReasonSyncFailed, "{{.RunID | lower}} failed"))
		assert.Equal(t, "01jrun failed", engine.Render(ReasonSyncFailed, EventData{RunID: "01JRUN"}))
	})

	t.Run("invalid template", func(t *testing.T) {
		assert.Error(t, engine.SetTemplate(ReasonSyncFailed, "{{.RunID"))
	})

	t.Run("unknown reason falls back", func(t *testing.T) {
		assert.Equal(t, "Event Unknown for instance inst-1", engine.Render("Unknown", EventData{Instance: "inst-1"}))
	})

	t.Run("long messages are truncated", func(t *testing.T) {
		msg := engine.Render(ReasonComponentFailed, EventData{Component: "web", Error: strings.Repeat("x", 2000)})
		assert.Len(t, msg, maxMessageLength)
		assert.True(t, strings.HasSuffix(msg, "..."))
	})
}

func TestRunFinished(t *testing.T) {
	cluster := mock.NewCluster()
	cluster.AddNamespace("shop")
	gen := NewEventGenerator("test-host")
	now := time.Date(2026, 1, 2, 3, 4, 8, 0, time.UTC)
	gen.now = func() time.Time { return now }

	run := terminalRun(api.SyncStatusPartiallyFailed,
		api.ComponentOutcome{Name: "jobs", Status: api.ComponentStatusFailed, Error: "boom"})
	require.NoError(t, gen.RunFinished(context.Background(), cluster, "prod", "shop", run))

	assert.ElementsMatch(t, []string{"Event/shop/shop.01jrun.0", "Event/shop/shop.01jrun.1"}, cluster.Keys())

	obj, ok := cluster.Object(api.ResourceKey{Kind: "Event", Namespace: "shop", Name: "shop.01jrun.0"})
	require.True(t, ok)
	assert.Equal(t, "v1", obj.GetAPIVersion())
	assert.Equal(t, map[string]string{LabelRun: "01JRUN", api.LabelInstance: "inst-1"}, obj.GetLabels())
	assert.Equal(t, "SyncPartiallyFailed", obj.Object["reason"])
	assert.Equal(t, "Warning", obj.Object["type"])
	assert.Equal(t, reportingController, obj.Object["reportingComponent"])
	assert.Equal(t, "test-host", obj.Object["reportingInstance"])
	assert.Equal(t, map[string]interface{}{"apiVersion": "v1", "kind": "Namespace", "name": "shop"}, obj.Object["involvedObject"])
	assert.Equal(t, "2026-01-02T03:04:08Z", obj.Object["lastTimestamp"])
	_, hasCreation := obj.Object["metadata"].(map[string]interface{})["creationTimestamp"]
	assert.False(t, hasCreation)
}

func TestRunFinishedCombinesErrors(t *testing.T) {
	cluster := mock.NewCluster()
	cluster.AddNamespace("shop")
	denied := errors.New("forbidden")
	cluster.FailOn(mock.VerbApply, api.ResourceKey{Kind: "Event", Namespace: "shop", Name: "shop.01jrun.0"}, denied, 1)

	run := terminalRun(api.SyncStatusPartiallyFailed,
		api.ComponentOutcome{Name: "jobs", Status: api.ComponentStatusFailed})
	err := NewEventGenerator("test-host").RunFinished(context.Background(), cluster, "prod", "shop", run)

	require.Error(t, err)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, []string{"Event/shop/shop.01jrun.1"}, cluster.Keys(), "remaining events are still recorded")
}
