package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

// defaultWaitTimeout bounds sync_start with wait=true when no timeout is given.
const defaultWaitTimeout = 5 * time.Minute

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("instance_list",
		mcp.WithDescription("List the instances shipyard can sync"),
	), s.handleInstanceList)

	s.mcp.AddTool(mcp.NewTool("sync_start",
		mcp.WithDescription("Start reconciling an instance with its cluster"),
		mcp.WithString("instance",
			mcp.Required(),
			mcp.Description("UUID of the instance to sync"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the run to finish and return its outcome (default: false)"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("How long to wait when wait is true (default: 300)"),
		),
	), s.handleSyncStart)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Get the status of a sync run with per-component outcomes"),
		mcp.WithString("run",
			mcp.Required(),
			mcp.Description("ID of the sync run"),
		),
	), s.handleSyncStatus)

	s.mcp.AddTool(mcp.NewTool("sync_list",
		mcp.WithDescription("List sync runs, newest first"),
		mcp.WithString("instance",
			mcp.Description("Only list runs of this instance"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs to return (default: 20)"),
		),
	), s.handleSyncList)

	s.mcp.AddTool(mcp.NewTool("sync_cancel",
		mcp.WithDescription("Cancel an active sync run"),
		mcp.WithString("run",
			mcp.Required(),
			mcp.Description("ID of the sync run"),
		),
	), s.handleSyncCancel)

	s.mcp.AddTool(mcp.NewTool("sync_plan",
		mcp.WithDescription("Show what a sync of an instance would change, without changing anything"),
		mcp.WithString("instance",
			mcp.Required(),
			mcp.Description("UUID of the instance"),
		),
	), s.handleSyncPlan)
}

// syncService returns the registered engine or a tool error result.
func syncService() (api.SyncService, *mcp.CallToolResult) {
	svc := api.GetSyncService()
	if svc == nil {
		return nil, mcp.NewToolResultError("Sync service not available")
	}
	return svc, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleInstanceList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instances := api.GetInstanceStore()
	if instances == nil {
		return mcp.NewToolResultError("Instance store not available"), nil
	}
	list, err := instances.ListInstances(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list instances: %v", err)), nil
	}

	type instanceInfo struct {
		UUID        string   `json:"uuid"`
		Application string   `json:"application"`
		Environment string   `json:"environment"`
		Namespace   string   `json:"namespace"`
		Version     string   `json:"version,omitempty"`
		Components  []string `json:"components"`
	}
	out := make([]instanceInfo, 0, len(list))
	for i := range list {
		inst := &list[i]
		info := instanceInfo{
			UUID:        inst.UUID,
			Application: inst.Application.Name,
			Environment: inst.Environment.Name,
			Namespace:   inst.TargetNamespace(),
			Version:     inst.Version,
			Components:  []string{},
		}
		for _, c := range inst.EnabledComponents() {
			info.Components = append(info.Components, c.Name)
		}
		out = append(out, info)
	}
	return jsonResult(out)
}

func (s *Server) handleSyncStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceUUID, err := request.RequireString("instance")
	if err != nil {
		return mcp.NewToolResultError("instance argument is required"), nil
	}
	svc, errResult := syncService()
	if errResult != nil {
		return errResult, nil
	}

	args := request.GetArguments()
	wait, _ := args["wait"].(bool)
	timeout := defaultWaitTimeout
	if secs, ok := args["timeout_seconds"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}

	runID, err := svc.StartSync(ctx, instanceUUID)
	if err != nil {
		var lockErr *api.LockError
		if errors.As(err, &lockErr) {
			return mcp.NewToolResultError(fmt.Sprintf("Sync rejected: %v", err)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start sync: %v", err)), nil
	}
	logging.Info(api.SubsystemServer, "Started sync %s of instance %s", runID, instanceUUID)

	if !wait {
		return jsonResult(map[string]string{"run": runID, "instance": instanceUUID})
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	run, err := svc.Wait(waitCtx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Sync %s is still running: %v", runID, err)), nil
	}
	return jsonResult(run)
}

func (s *Server) handleSyncStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run")
	if err != nil {
		return mcp.NewToolResultError("run argument is required"), nil
	}
	svc, errResult := syncService()
	if errResult != nil {
		return errResult, nil
	}
	run, err := svc.GetSyncStatus(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get sync run: %v", err)), nil
	}
	return jsonResult(run)
}

func (s *Server) handleSyncList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	svc, errResult := syncService()
	if errResult != nil {
		return errResult, nil
	}
	args := request.GetArguments()
	instanceUUID, _ := args["instance"].(string)
	limit := 20
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	runs, err := svc.ListSyncRuns(ctx, instanceUUID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list sync runs: %v", err)), nil
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}

	type runInfo struct {
		ID          string         `json:"id"`
		Instance    string         `json:"instance"`
		Status      api.SyncStatus `json:"status"`
		StartedAt   time.Time      `json:"startedAt"`
		CompletedAt *time.Time     `json:"completedAt,omitempty"`
		Error       string         `json:"error,omitempty"`
	}
	out := make([]runInfo, 0, len(runs))
	for _, r := range runs {
		out = append(out, runInfo{
			ID:          r.ID,
			Instance:    r.InstanceUUID,
			Status:      r.Status,
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
			Error:       r.Error,
		})
	}
	return jsonResult(out)
}

func (s *Server) handleSyncCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run")
	if err != nil {
		return mcp.NewToolResultError("run argument is required"), nil
	}
	svc, errResult := syncService()
	if errResult != nil {
		return errResult, nil
	}
	if err := svc.CancelSync(ctx, runID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to cancel sync: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Sync %s cancelled", runID)), nil
}

func (s *Server) handleSyncPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceUUID, err := request.RequireString("instance")
	if err != nil {
		return mcp.NewToolResultError("instance argument is required"), nil
	}
	svc, errResult := syncService()
	if errResult != nil {
		return errResult, nil
	}
	preview, err := svc.Plan(ctx, instanceUUID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to plan: %v", err)), nil
	}
	return jsonResult(preview)
}
