package formatting

import (
	"fmt"

	"sigs.k8s.io/yaml"

	"shipyard/internal/api"
)

// YAMLFormatter writes values as YAML. Field names follow the JSON tags, so
// both machine formats agree.
type YAMLFormatter struct {
	options Options
}

func (f *YAMLFormatter) write(v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to format as YAML: %w", err)
	}
	_, err = f.options.writer().Write(data)
	return err
}

func (f *YAMLFormatter) FormatRun(run *api.SyncRun) error          { return f.write(run) }
func (f *YAMLFormatter) FormatRuns(runs []*api.SyncRun) error      { return f.write(nonNilRuns(runs)) }
func (f *YAMLFormatter) FormatPlan(preview *api.PlanPreview) error { return f.write(preview) }
func (f *YAMLFormatter) FormatInstances(list []api.Instance) error { return f.write(nonNilInstances(list)) }
