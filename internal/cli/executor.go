package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"

	"shipyard/internal/api"
	"shipyard/internal/app"
	"shipyard/internal/formatting"
)

// ExecutorOptions contains configuration options for command execution.
type ExecutorOptions struct {
	// Format specifies the desired output format (table, json, yaml)
	Format formatting.OutputFormat
	// Quiet suppresses progress indicators and informational logs
	Quiet bool
	// Debug enables debug logging
	Debug bool
	// ConfigPath specifies the configuration directory
	ConfigPath string
	// Version is passed to the application
	Version string
	// Output receives formatted results, default stdout
	Output io.Writer
	// Progress receives spinner and status lines, default stderr
	Progress io.Writer
}

// Executor runs commands against the in-process sync engine.
type Executor struct {
	options   ExecutorOptions
	sync      api.SyncService
	instances api.InstanceStore
	formatter formatting.Formatter
	closeFn   func()
}

// NewExecutor bootstraps the application from options.ConfigPath. Close
// must be called to release the services.
func NewExecutor(options ExecutorOptions) (*Executor, error) {
	cfg := app.NewConfig(options.Debug, options.ConfigPath)
	cfg.Quiet = options.Quiet
	cfg.Version = options.Version

	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, err
	}

	syncService := api.GetSyncService()
	instances := api.GetInstanceStore()
	if syncService == nil || instances == nil {
		application.Close()
		return nil, fmt.Errorf("sync engine not registered")
	}

	e := newExecutor(options, syncService, instances)
	e.closeFn = application.Close
	return e, nil
}

func newExecutor(options ExecutorOptions, syncService api.SyncService, instances api.InstanceStore) *Executor {
	if options.Output == nil {
		options.Output = os.Stdout
	}
	if options.Progress == nil {
		options.Progress = os.Stderr
	}
	return &Executor{
		options:   options,
		sync:      syncService,
		instances: instances,
		formatter: formatting.New(formatting.Options{
			Format: options.Format,
			Output: options.Output,
			Quiet:  options.Quiet,
		}),
	}
}

// Close stops active runs and releases the services.
func (e *Executor) Close() {
	if e.closeFn != nil {
		e.closeFn()
		e.closeFn = nil
	}
}

// startSpinner returns a stop function; it is a no-op in quiet mode.
func (e *Executor) startSpinner(suffix string) func(final string) {
	if e.options.Quiet {
		return func(string) {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(e.options.Progress))
	s.Suffix = " " + suffix
	s.Start()
	return func(final string) {
		if final != "" {
			s.FinalMSG = final + "\n"
		}
		s.Stop()
	}
}

// Sync starts a run for the instance and, when wait is set, blocks until it
// is terminal and prints it. A run that does not succeed is returned as a
// *SyncFailedError after it has been printed.
func (e *Executor) Sync(ctx context.Context, instanceUUID string, wait bool) error {
	stop := e.startSpinner(fmt.Sprintf("Syncing instance %s...", instanceUUID))

	runID, err := e.sync.StartSync(ctx, instanceUUID)
	if err != nil {
		stop(text.FgRed.Sprint("Sync could not start"))
		return err
	}
	if !wait {
		stop("")
		fmt.Fprintln(e.options.Output, runID)
		return nil
	}

	run, err := e.sync.Wait(ctx, runID)
	if err != nil {
		stop(text.FgRed.Sprintf("Stopped waiting for %s", runID))
		if ctx.Err() != nil {
			// the run keeps its lease until cancelled
			_ = e.sync.CancelSync(context.Background(), runID)
		}
		return fmt.Errorf("waiting for sync %s: %w", runID, err)
	}

	if run.Status == api.SyncStatusSucceeded {
		stop(text.FgGreen.Sprintf("Sync %s succeeded", runID))
	} else {
		stop(text.FgRed.Sprintf("Sync %s finished %s", runID, run.Status))
	}

	if err := e.formatter.FormatRun(run); err != nil {
		return err
	}
	if run.Status != api.SyncStatusSucceeded {
		return &SyncFailedError{RunID: run.ID, Status: run.Status, Reason: run.Error}
	}
	return nil
}

// Plan prints the actions a sync would take, without writing anything.
func (e *Executor) Plan(ctx context.Context, instanceUUID string) error {
	stop := e.startSpinner(fmt.Sprintf("Planning instance %s...", instanceUUID))
	preview, err := e.sync.Plan(ctx, instanceUUID)
	stop("")
	if err != nil {
		return err
	}
	return e.formatter.FormatPlan(preview)
}

// Status prints one sync run.
func (e *Executor) Status(ctx context.Context, runID string) error {
	run, err := e.sync.GetSyncStatus(ctx, runID)
	if err != nil {
		return err
	}
	return e.formatter.FormatRun(run)
}

// Runs prints the runs of an instance, newest first.
func (e *Executor) Runs(ctx context.Context, instanceUUID string) error {
	if _, err := e.instances.GetInstance(ctx, instanceUUID); err != nil {
		return err
	}
	runs, err := e.sync.ListSyncRuns(ctx, instanceUUID)
	if err != nil {
		return err
	}
	return e.formatter.FormatRuns(runs)
}

// Instances prints every known instance.
func (e *Executor) Instances(ctx context.Context) error {
	list, err := e.instances.ListInstances(ctx)
	if err != nil {
		return err
	}
	return e.formatter.FormatInstances(list)
}
