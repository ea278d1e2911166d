package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shipyard/internal/cli"
)

var (
	syncFlags   cli.CommandFlags
	syncNoWait  bool
	syncTimeout time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync <instance-uuid>",
	Short: "Sync one instance onto its cluster",
	Long: `Renders every enabled component of the instance, plans the actions
against the previous inventory and applies them to the instance's cluster.

The command waits for the run and prints its outcome. Exit codes:
  0  the run succeeded
  1  the command failed before a run finished
  2  the run failed
  3  the run partially failed
  4  another run holds the instance lease

Interrupting the command cancels the run; actions already started finish.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		executor, err := newExecutor(&syncFlags)
		if err != nil {
			return err
		}
		defer executor.Close()

		ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if syncTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, syncTimeout)
			defer cancel()
		}
		return executor.Sync(ctx, args[0], !syncNoWait)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <instance-uuid>",
	Short: "Show the actions a sync would take",
	Long: `Renders the instance and compares it with its inventory without
taking a lease or writing to the cluster. Update actions show the merge
patch that would be sent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		executor, err := newExecutor(&planFlags)
		if err != nil {
			return err
		}
		defer executor.Close()
		return executor.Plan(commandContext(cmd), args[0])
	},
}

var planFlags cli.CommandFlags

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(planCmd)

	cli.RegisterCommonFlags(syncCmd, &syncFlags)
	syncCmd.Flags().BoolVar(&syncNoWait, "no-wait", false, "Print the run ID and exit without waiting")
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 0, "Give up waiting after this duration and cancel the run")

	cli.RegisterCommonFlags(planCmd, &planFlags)
}
