package cmd

import (
	"github.com/spf13/cobra"

	"shipyard/internal/cli"
)

var (
	statusFlags    cli.CommandFlags
	runsFlags      cli.CommandFlags
	instancesFlags cli.CommandFlags
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a recorded sync run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		executor, err := newExecutor(&statusFlags)
		if err != nil {
			return err
		}
		defer executor.Close()
		return executor.Status(commandContext(cmd), args[0])
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs <instance-uuid>",
	Short: "List the sync runs of an instance, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		executor, err := newExecutor(&runsFlags)
		if err != nil {
			return err
		}
		defer executor.Close()
		return executor.Runs(commandContext(cmd), args[0])
	},
}

var instancesCmd = &cobra.Command{
	Use:     "instances",
	Aliases: []string{"instance", "list"},
	Short:   "List known instances",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		executor, err := newExecutor(&instancesFlags)
		if err != nil {
			return err
		}
		defer executor.Close()
		return executor.Instances(commandContext(cmd))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(instancesCmd)

	cli.RegisterCommonFlags(statusCmd, &statusFlags)
	cli.RegisterCommonFlags(runsCmd, &runsFlags)
	cli.RegisterCommonFlags(instancesCmd, &instancesFlags)
}
