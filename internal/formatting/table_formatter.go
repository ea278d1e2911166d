package formatting

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"shipyard/internal/api"
	pkgstrings "shipyard/pkg/strings"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.options.writer())
	t.SetStyle(table.StyleRounded)
	return t
}

func header(cols ...string) table.Row {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = text.FgHiCyan.Sprint(c)
	}
	return row
}

func colored(status string) string {
	return statusColor(status).Sprint(status)
}

func (f *TableFormatter) printf(format string, args ...interface{}) {
	fmt.Fprintf(f.options.writer(), format, args...)
}

// formatEmptyMessage formats empty result messages
func (f *TableFormatter) formatEmptyMessage(message string) error {
	_, err := fmt.Fprintf(f.options.writer(), "%s\n", text.FgYellow.Sprint(message))
	return err
}

// FormatRun prints the run summary, one row per component and every action
// that did not apply.
func (f *TableFormatter) FormatRun(run *api.SyncRun) error {
	if !f.options.Quiet {
		f.printf("%s %s\n", text.FgHiBlue.Sprint("Run:"), run.ID)
		f.printf("%s %s\n", text.FgHiBlue.Sprint("Instance:"), run.InstanceUUID)
		f.printf("%s %s\n", text.FgHiBlue.Sprint("Status:"), colored(string(run.Status)))
		f.printf("%s %s\n", text.FgHiBlue.Sprint("Duration:"), FormatDuration(run.Duration()))
		if run.Plan != nil {
			f.printf("%s %d create, %d update, %d delete, %d unchanged\n", text.FgHiBlue.Sprint("Plan:"),
				run.Plan.Creates, run.Plan.Updates, run.Plan.Deletes, run.Plan.Unchanged)
		}
		if run.Error != "" {
			f.printf("%s %s (%s)\n", text.FgRed.Sprint("Error:"), run.Error, run.ErrorKind)
		}
	}

	if len(run.Components) > 0 {
		t := f.createTable()
		t.AppendHeader(header("COMPONENT", "TYPE", "STATUS", "VISIBILITY", "ROUTE", "RESOURCES", "NOTES"))
		for _, c := range run.Components {
			t.AppendRow(table.Row{
				c.Name,
				string(c.Type),
				colored(string(c.Status)),
				visibility(c),
				c.RouteKind,
				len(c.AppliedResources),
				notes(c),
			})
		}
		t.Render()
	}

	failed := failedActions(run)
	if len(failed) == 0 {
		return nil
	}
	t := f.createTable()
	t.AppendHeader(header("ACTION", "RESOURCE", "OUTCOME", "ATTEMPTS", "DETAIL"))
	for _, r := range failed {
		detail := r.Error
		if detail == "" {
			detail = r.Reason
		}
		t.AppendRow(table.Row{
			string(r.Verb),
			r.Key.String(),
			colored(string(r.Outcome)),
			r.Attempts,
			pkgstrings.Truncate(detail, pkgstrings.DefaultMessageMaxLen),
		})
	}
	t.Render()
	return nil
}

func visibility(c api.ComponentOutcome) string {
	if c.RequestedVisibility == "" {
		return ""
	}
	if c.Downgraded() {
		return text.FgYellow.Sprintf("%s -> %s", c.RequestedVisibility, c.EffectiveVisibility)
	}
	return string(c.EffectiveVisibility)
}

func notes(c api.ComponentOutcome) string {
	var parts []string
	if c.Error != "" {
		parts = append(parts, pkgstrings.Truncate(c.Error, pkgstrings.DefaultMessageMaxLen))
	}
	for _, w := range c.Warnings {
		parts = append(parts, pkgstrings.Truncate(w, pkgstrings.DefaultMessageMaxLen))
	}
	return strings.Join(parts, "\n")
}

func failedActions(run *api.SyncRun) []api.ActionResult {
	var out []api.ActionResult
	collect := func(results []api.ActionResult) {
		for _, r := range results {
			if r.Outcome != api.OutcomeApplied {
				out = append(out, r)
			}
		}
	}
	collect(run.Actions)
	for _, c := range run.Components {
		collect(c.Actions)
	}
	return out
}

// FormatRuns prints one row per run.
func (f *TableFormatter) FormatRuns(runs []*api.SyncRun) error {
	if len(runs) == 0 {
		return f.formatEmptyMessage("No sync runs found")
	}
	t := f.createTable()
	t.AppendHeader(header("RUN", "INSTANCE", "STATUS", "STARTED", "DURATION", "ERROR"))
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID,
			r.InstanceUUID,
			colored(string(r.Status)),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			FormatDuration(r.Duration()),
			pkgstrings.Truncate(r.Error, pkgstrings.DefaultMessageMaxLen),
		})
	}
	t.Render()
	return nil
}

// FormatPlan prints the planned actions in execution order, followed by the
// merge patch of every update unless Quiet is set.
func (f *TableFormatter) FormatPlan(preview *api.PlanPreview) error {
	f.printf("%s %s on cluster %s\n", text.FgHiBlue.Sprint("Plan for instance"), preview.InstanceUUID, preview.Cluster)
	for _, c := range preview.Components {
		if c.Status == api.ComponentStatusFailed {
			f.printf("%s %s: %s\n", text.FgRed.Sprint("Component failed to render"), c.Name, c.Error)
		}
		for _, w := range c.Warnings {
			f.printf("%s %s: %s\n", text.FgYellow.Sprint("Warning"), c.Name, w)
		}
	}

	if len(preview.Actions) == 0 {
		return f.formatEmptyMessage(fmt.Sprintf("No changes, %d resources up to date", len(preview.Unchanged)))
	}

	names := componentNames(preview.Components)
	t := f.createTable()
	t.AppendHeader(header("#", "ACTION", "RESOURCE", "COMPONENT"))
	for i, a := range preview.Actions {
		t.AppendRow(table.Row{i + 1, verbColor(a.Verb).Sprint(string(a.Verb)), a.Key.String(), names[a.ComponentUUID]})
	}
	t.Render()
	f.printf("%d actions, %d resources unchanged\n", len(preview.Actions), len(preview.Unchanged))

	if f.options.Quiet {
		return nil
	}
	for _, a := range preview.Actions {
		if a.Patch == "" {
			continue
		}
		f.printf("\n%s %s\n%s\n", text.FgHiBlue.Sprint("Patch"), a.Key, pkgstrings.Indent(a.Patch, "    "))
	}
	return nil
}

func verbColor(verb api.ActionVerb) text.Colors {
	switch verb {
	case api.ActionCreate:
		return text.Colors{text.FgGreen}
	case api.ActionUpdate:
		return text.Colors{text.FgYellow}
	case api.ActionDelete:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgCyan}
	}
}

func componentNames(outcomes []api.ComponentOutcome) map[string]string {
	names := make(map[string]string, len(outcomes))
	for _, c := range outcomes {
		names[c.UUID] = c.Name
	}
	return names
}

// FormatInstances prints one row per instance.
func (f *TableFormatter) FormatInstances(list []api.Instance) error {
	if len(list) == 0 {
		return f.formatEmptyMessage("No instances found")
	}
	t := f.createTable()
	t.AppendHeader(header("INSTANCE", "APPLICATION", "ENVIRONMENT", "NAMESPACE", "VERSION", "COMPONENTS"))
	for i := range list {
		inst := &list[i]
		var comps []string
		for _, c := range inst.Components {
			name := c.Name
			if !c.Enabled {
				name = text.FgHiBlack.Sprint(name + " (disabled)")
			}
			comps = append(comps, name)
		}
		t.AppendRow(table.Row{
			inst.UUID,
			inst.Application.Name,
			inst.Environment.Name,
			inst.TargetNamespace(),
			inst.Version,
			strings.Join(comps, ", "),
		})
	}
	t.Render()
	return nil
}
