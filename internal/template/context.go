package template

import (
	"strings"

	"shipyard/internal/api"
)

// lookupPath resolves a dotted path through nested maps. A path that runs
// into a nil value below the root is reported as present: optional settings
// are nil and templates guard them with if.
func lookupPath(ctx map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = ctx
	for _, part := range strings.Split(path, ".") {
		switch m := current.(type) {
		case map[string]interface{}:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]string:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		case nil:
			return nil, true
		default:
			return nil, false
		}
	}
	return current, true
}

// setPath writes value at a dotted path, creating intermediate maps.
func setPath(ctx map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := ctx
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// buildContext assembles the variable context of one component render.
// Every optional setting is present with a nil value so templates can test
// it without tripping missing-key errors.
func buildContext(inst *api.Instance, comp api.Component, exposure api.ExposureResolution) map[string]interface{} {
	env := map[string]interface{}{}
	for k, v := range inst.Environment.Settings {
		env[k] = v
	}

	var gateway interface{}
	if exposure.Gateway != nil {
		gateway = map[string]interface{}{
			"namespace": exposure.Gateway.Namespace,
			"name":      exposure.Gateway.Name,
		}
	}

	values := map[string]interface{}{}
	for k, v := range comp.Settings.Values {
		values[k] = v
	}

	return map[string]interface{}{
		"instance": map[string]interface{}{
			"uuid":      inst.UUID,
			"image":     inst.Image,
			"version":   inst.Version,
			"namespace": inst.TargetNamespace(),
		},
		"application": map[string]interface{}{
			"uuid": inst.Application.UUID,
			"name": inst.Application.Name,
		},
		"environment": map[string]interface{}{
			"uuid": inst.Environment.UUID,
			"name": inst.Environment.Name,
		},
		"env": env,
		"component": map[string]interface{}{
			"uuid":                comp.UUID,
			"name":                comp.Name,
			"type":                string(comp.Type),
			"visibility":          string(exposure.Effective),
			"requestedVisibility": string(exposure.Requested),
		},
		"exposure": map[string]interface{}{
			"routed":     exposure.Routed(),
			"routeKind":  exposure.RouteKind,
			"visibility": string(exposure.Effective),
		},
		"gateway":  gateway,
		"settings": settingsContext(comp),
		"labels":   ownershipLabels(inst.UUID, comp.UUID),
		"values":   values,
	}
}

func settingsContext(comp api.Component) map[string]interface{} {
	s := comp.Settings

	command := make([]interface{}, 0, len(s.Command))
	for _, arg := range s.Command {
		command = append(command, arg)
	}
	envs := make([]interface{}, 0, len(s.Envs))
	for _, e := range s.Envs {
		envs = append(envs, map[string]interface{}{"key": e.Key, "value": e.Value})
	}

	out := map[string]interface{}{
		"command":     command,
		"envs":        envs,
		"cpu":         s.CPU,
		"memory":      s.Memory,
		"protocol":    nil,
		"port":        nil,
		"url":         nil,
		"healthcheck": nil,
		"autoscaling": nil,
		"replicas":    nil,
		"schedule":    nil,
		"suspend":     false,
	}

	switch comp.Type {
	case api.ComponentTypeWebapp:
		if w := s.Webapp; w != nil {
			out["protocol"] = strings.ToLower(string(w.Exposure.Protocol))
			out["port"] = w.Exposure.Port
			if w.URL != "" {
				out["url"] = w.URL
			}
			if hc := w.Healthcheck; hc != nil {
				out["healthcheck"] = map[string]interface{}{
					"path":             hc.Path,
					"protocol":         hc.Protocol,
					"port":             hc.Port,
					"timeout":          hc.Timeout,
					"interval":         hc.Interval,
					"failureThreshold": hc.FailureThreshold,
				}
			}
			if as := w.Autoscaling; as != nil {
				out["autoscaling"] = map[string]interface{}{"min": as.Min, "max": as.Max}
			}
		}
	case api.ComponentTypeWorker:
		if w := s.Worker; w != nil {
			out["replicas"] = w.Replicas
		}
	case api.ComponentTypeCron:
		if c := s.Cron; c != nil {
			out["schedule"] = c.Schedule
			out["suspend"] = c.Suspend
		}
	}
	return out
}

func ownershipLabels(instanceUUID, componentUUID string) map[string]interface{} {
	return map[string]interface{}{
		api.LabelManagedBy: api.ManagedByValue,
		api.LabelInstance:  instanceUUID,
		api.LabelComponent: componentUUID,
	}
}
