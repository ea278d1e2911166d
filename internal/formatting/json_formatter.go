package formatting

import (
	"fmt"

	"shipyard/internal/api"
)

// JSONFormatter writes values as indented JSON.
type JSONFormatter struct {
	options Options
}

func (f *JSONFormatter) write(v interface{}) error {
	_, err := fmt.Fprintln(f.options.writer(), PrettyJSON(v))
	return err
}

func (f *JSONFormatter) FormatRun(run *api.SyncRun) error          { return f.write(run) }
func (f *JSONFormatter) FormatRuns(runs []*api.SyncRun) error      { return f.write(nonNilRuns(runs)) }
func (f *JSONFormatter) FormatPlan(preview *api.PlanPreview) error { return f.write(preview) }
func (f *JSONFormatter) FormatInstances(list []api.Instance) error { return f.write(nonNilInstances(list)) }
