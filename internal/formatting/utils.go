package formatting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"shipyard/internal/api"
)

// PrettyJSON formats any value as indented JSON for human-readable display.
// Marshaling errors fall back to fmt's %v rendering.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// FormatDuration rounds d for display: milliseconds below a second, tenths
// of a second below a minute, whole seconds above.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// statusColor colours run, component and action states alike; they share
// their spellings.
func statusColor(status string) text.Colors {
	switch status {
	case string(api.SyncStatusSucceeded), string(api.OutcomeApplied):
		return text.Colors{text.FgGreen}
	case string(api.SyncStatusPartiallyFailed), string(api.OutcomeSkipped):
		return text.Colors{text.FgYellow}
	case string(api.SyncStatusFailed):
		return text.Colors{text.FgRed}
	case string(api.ComponentStatusDisabled):
		return text.Colors{text.FgHiBlack}
	default:
		return text.Colors{text.FgCyan}
	}
}

func nonNilRuns(runs []*api.SyncRun) []*api.SyncRun {
	if runs == nil {
		return []*api.SyncRun{}
	}
	return runs
}

func nonNilInstances(list []api.Instance) []api.Instance {
	if list == nil {
		return []api.Instance{}
	}
	return list
}
