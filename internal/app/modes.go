package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"shipyard/internal/api"
	"shipyard/internal/config"
	"shipyard/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

// runServe runs the long-lived parts of shipyard until ctx is cancelled or
// the process receives SIGINT or SIGTERM:
//   - the Prometheus endpoint, when metrics.enabled is set
//   - the reconcile loop, when reconcile.enabled is set
//   - the MCP tool server, when server.enabled is set
//
// Sync runs still in flight at shutdown are cancelled by Close.
func runServe(ctx context.Context, cfg *config.ShipyardConfig, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           metricsMux(services),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logging.Info(api.SubsystemApp, "Serving metrics on %s", cfg.Metrics.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if services.Reconciler != nil {
		if err := services.Reconciler.Start(gctx); err != nil {
			logging.Error(api.SubsystemApp, err, "Failed to start reconcile loop")
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return services.Reconciler.Stop()
		})
	}

	if services.MCPServer != nil {
		if err := services.MCPServer.Start(gctx); err != nil {
			logging.Error(api.SubsystemApp, err, "Failed to start MCP server")
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return services.MCPServer.Stop(shutdownCtx)
		})
	}

	logging.Info(api.SubsystemApp, "shipyard is running. Press Ctrl+C to stop.")
	<-gctx.Done()
	logging.Info(api.SubsystemApp, "Shutting down")

	return g.Wait()
}

func metricsMux(services *Services) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", services.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
