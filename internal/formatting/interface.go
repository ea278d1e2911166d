// Package formatting renders sync runs, plans and instances for the CLI.
//
// Three output formats are supported: rich tables (default), JSON and YAML.
// Formatters write to the io.Writer given in Options, which defaults to
// standard output.
package formatting

import (
	"fmt"
	"io"
	"os"

	"shipyard/internal/api"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", s)
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Output io.Writer
	Quiet  bool // Suppress decorative elements
}

func (o Options) writer() io.Writer {
	if o.Output == nil {
		return os.Stdout
	}
	return o.Output
}

// Formatter renders engine results.
type Formatter interface {
	FormatRun(run *api.SyncRun) error
	FormatRuns(runs []*api.SyncRun) error
	FormatPlan(preview *api.PlanPreview) error
	FormatInstances(instances []api.Instance) error
}

// New returns the formatter for options.Format.
func New(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return &JSONFormatter{options: options}
	case FormatYAML:
		return &YAMLFormatter{options: options}
	case FormatTable:
		fallthrough
	default:
		return &TableFormatter{options: options}
	}
}
