package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shipyard/internal/cli"
)

// rootCmd represents the base command for the shipyard application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "shipyard",
	Short: "Reconcile application instances onto Kubernetes clusters",
	Long: `shipyard renders the components of an application instance from
versioned templates, compares them with what it applied before and
creates, updates or deletes cluster resources until both agree.

Run 'shipyard serve' for the reconcile loop and MCP tools, or use
'shipyard sync' and 'shipyard plan' for one instance at a time.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "shipyard version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(cli.ExitCode(err))
	}
}

// newExecutor creates an executor from the shared command flags.
func newExecutor(flags *cli.CommandFlags) (*cli.Executor, error) {
	options, err := flags.ToExecutorOptions(GetVersion())
	if err != nil {
		return nil, err
	}
	executor, err := cli.NewExecutor(options)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize shipyard: %w", err)
	}
	return executor, nil
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
