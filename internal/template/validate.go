package template

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"shipyard/internal/api"
)

// cronParser accepts standard five-field expressions and six-field ones with
// a leading seconds field.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// validateSettings checks the type-specific settings of a component before
// any template is rendered. The switch is exhaustive over api.ComponentType.
func validateSettings(comp api.Component) error {
	switch comp.Type {
	case api.ComponentTypeWebapp:
		return validateWebapp(comp)
	case api.ComponentTypeWorker:
		if w := comp.Settings.Worker; w != nil && w.Replicas < 0 {
			return fmt.Errorf("worker replicas must not be negative, got %d", w.Replicas)
		}
		return nil
	case api.ComponentTypeCron:
		return validateCron(comp)
	}
	return fmt.Errorf("unsupported component type %q", comp.Type)
}

func validateWebapp(comp api.Component) error {
	w := comp.Settings.Webapp
	if w == nil {
		return fmt.Errorf("webapp settings are required")
	}
	if w.Exposure.Protocol == "" {
		return fmt.Errorf("webapp exposure protocol is required")
	}
	if w.Exposure.Protocol.RouteKind() == "" {
		return fmt.Errorf("unsupported exposure protocol %q", w.Exposure.Protocol)
	}
	if w.Exposure.Port <= 0 || w.Exposure.Port > 65535 {
		return fmt.Errorf("webapp exposure port must be between 1 and 65535, got %d", w.Exposure.Port)
	}
	if as := w.Autoscaling; as != nil && (as.Min < 1 || as.Max < as.Min) {
		return fmt.Errorf("invalid autoscaling bounds min=%d max=%d", as.Min, as.Max)
	}
	proto := api.Protocol(strings.ToLower(string(w.Exposure.Protocol)))
	if comp.RequestedVisibility().Routed() && (proto == api.ProtocolHTTP || proto == api.ProtocolHTTPS) && w.URL == "" {
		return fmt.Errorf("url is required for %s visibility over %s", comp.RequestedVisibility(), proto)
	}
	return nil
}

func validateCron(comp api.Component) error {
	c := comp.Settings.Cron
	if c == nil || strings.TrimSpace(c.Schedule) == "" {
		return fmt.Errorf("cron schedule is required")
	}
	fields := strings.Fields(c.Schedule)
	if len(fields) != 5 && len(fields) != 6 {
		return fmt.Errorf("cron schedule %q must have five or six fields, got %d", c.Schedule, len(fields))
	}
	if _, err := cronParser.Parse(c.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", c.Schedule, err)
	}
	return nil
}
