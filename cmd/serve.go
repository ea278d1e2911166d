package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"shipyard/internal/app"
	"shipyard/internal/config"
	"shipyard/pkg/logging"
)

var (
	serveDebug      bool
	serveLogFormat  string
	serveConfigPath string
)

// serveCmd runs the long-lived parts of shipyard.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconcile loop, MCP tools and metrics endpoint",
	Long: `Starts shipyard and keeps it running until interrupted.

Depending on config.yaml, serve runs:
  - the reconcile loop (reconcile.enabled), which syncs every instance at
    startup, on every change of its file when reconcile.watch is set, and
    every reconcile.resyncInterval
  - the MCP tool server (server.enabled), exposing instance_list,
    sync_start, sync_status, sync_list, sync_cancel and sync_plan
  - the Prometheus endpoint (metrics.enabled)

Configuration:
  shipyard loads config.yaml from --config-path, default ~/.config/shipyard.
  Instances are read from <storage.path>/instances/<uuid>.yaml and sync runs
  are recorded under <storage.path>/syncruns.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveConfigPath)
	cfg.Version = GetVersion()
	switch logging.Format(serveLogFormat) {
	case logging.FormatText, logging.FormatJSON:
		cfg.LogFormat = logging.Format(serveLogFormat)
	default:
		return fmt.Errorf("unsupported log format %q (use text or json)", serveLogFormat)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", string(logging.FormatText), "Log format (text, json)")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory")
}
