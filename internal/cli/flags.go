package cli

import (
	"github.com/spf13/cobra"

	"shipyard/internal/config"
	"shipyard/internal/formatting"
)

// CommandFlags holds the flag values shared by commands that run against the
// sync engine.
type CommandFlags struct {
	// OutputFormat specifies the desired output format (table, json, yaml)
	OutputFormat string
	// Quiet suppresses progress indicators and non-essential output
	Quiet bool
	// Debug enables debug logging
	Debug bool
	// ConfigPath specifies a custom configuration directory path
	ConfigPath string
}

// RegisterCommonFlags registers the flags used by every engine command.
//
// The registered flags are:
//   - --output/-o: Output format (table, json, yaml), default: "table"
//   - --quiet/-q: Suppress non-essential output
//   - --debug: Enable debug logging
//   - --config-path: Configuration directory
func RegisterCommonFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.PersistentFlags().StringVarP(&flags.OutputFormat, "output", "o", string(formatting.FormatTable), "Output format (table, json, yaml)")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config-path", defaultConfigPath(), "Configuration directory")
}

func defaultConfigPath() string {
	dir, err := config.GetUserConfigDir()
	if err != nil {
		return ""
	}
	return dir
}

// ToExecutorOptions converts CommandFlags to ExecutorOptions.
func (f *CommandFlags) ToExecutorOptions(version string) (ExecutorOptions, error) {
	format, err := formatting.ParseFormat(f.OutputFormat)
	if err != nil {
		return ExecutorOptions{}, err
	}
	return ExecutorOptions{
		Format:     format,
		Quiet:      f.Quiet,
		Debug:      f.Debug,
		ConfigPath: f.ConfigPath,
		Version:    version,
	}, nil
}
