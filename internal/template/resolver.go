package template

import (
	"fmt"
	"sort"
	"sync"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

// Input is everything a component render depends on. The resolver reads
// nothing else, so equal inputs always yield equal documents.
type Input struct {
	Instance  *api.Instance
	Component api.Component
	Exposure  api.ExposureResolution
	Templates []api.TemplateDocument
}

// Resolver renders components into typed resource documents.
type Resolver struct {
	mu        sync.RWMutex
	renderers map[api.TemplateEngine]Renderer
}

// NewResolver creates a resolver with the built-in renderers registered.
func NewResolver() *Resolver {
	return &Resolver{
		renderers: map[api.TemplateEngine]Renderer{
			api.TemplateEngineGo:          NewGoTemplateRenderer(),
			api.TemplateEnginePlaceholder: NewPlaceholderRenderer(),
		},
	}
}

// Register installs or replaces the renderer for an engine.
func (r *Resolver) Register(engine api.TemplateEngine, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[engine] = renderer
}

func (r *Resolver) renderer(engine api.TemplateEngine) (Renderer, bool) {
	if engine == "" {
		engine = api.TemplateEngineGo
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[engine]
	return renderer, ok
}

// Resolve renders every enabled template of the component in render order.
// Any failure yields a *api.RenderError and no documents.
func (r *Resolver) Resolve(in Input) ([]api.Document, error) {
	comp := in.Component
	fail := func(tmpl, reason string, err error) ([]api.Document, error) {
		return nil, &api.RenderError{ComponentName: comp.Name, Template: tmpl, Reason: reason, Err: err}
	}

	if in.Instance == nil {
		return fail("", "no instance", nil)
	}
	if err := validateSettings(comp); err != nil {
		return fail("", "invalid settings", err)
	}

	templates := enabledTemplates(in.Templates)
	if len(templates) == 0 {
		return fail("", fmt.Sprintf("no enabled templates for component type %s", comp.Type), nil)
	}

	namespace := in.Instance.TargetNamespace()
	var (
		docs []api.Document
		seen = map[api.ResourceKey]string{}
	)
	for _, tmpl := range templates {
		renderer, ok := r.renderer(tmpl.Engine)
		if !ok {
			return fail(tmpl.Name, fmt.Sprintf("unknown template engine %q", tmpl.Engine), nil)
		}

		ctx := buildContext(in.Instance, comp, in.Exposure)
		if missing := applyDefaults(ctx, tmpl.Variables); len(missing) > 0 {
			return nil, &api.RenderError{ComponentName: comp.Name, Template: tmpl.Name, MissingVariables: missing}
		}

		referenced, err := renderer.Variables(tmpl.Content)
		if err != nil {
			return fail(tmpl.Name, "template does not parse", err)
		}
		if missing := missingVariables(ctx, referenced); len(missing) > 0 {
			return nil, &api.RenderError{ComponentName: comp.Name, Template: tmpl.Name, MissingVariables: missing}
		}

		rendered, err := renderer.Render(tmpl.Name, tmpl.Content, ctx)
		if err != nil {
			return fail(tmpl.Name, "template execution failed", err)
		}

		objects, err := decodeDocuments(rendered)
		if err != nil {
			return fail(tmpl.Name, "rendered output is not valid YAML", err)
		}

		for _, obj := range objects {
			if err := normalize(obj, namespace); err != nil {
				return fail(tmpl.Name, "invalid document", err)
			}
			key := api.KeyOf(obj)
			if prev, dup := seen[key]; dup {
				return fail(tmpl.Name, fmt.Sprintf("resource %s is also rendered by template %s", key, prev), nil)
			}
			seen[key] = tmpl.Name

			injectOwnership(obj, in.Instance, comp, tmpl.Name)
			digest, err := stampDigest(obj)
			if err != nil {
				return fail(tmpl.Name, "cannot compute digest", err)
			}
			docs = append(docs, api.Document{
				Key:           key,
				APIVersion:    obj.GetAPIVersion(),
				ComponentUUID: comp.UUID,
				Template:      tmpl.Name,
				Digest:        digest,
				Object:        obj,
				Order:         len(docs),
			})
		}
	}

	logging.Debug(api.SubsystemTemplate, "Rendered %d document(s) for component %s", len(docs), comp.Name)
	return docs, nil
}

// enabledTemplates drops disabled templates and sorts the rest by render
// order, then name.
func enabledTemplates(in []api.TemplateDocument) []api.TemplateDocument {
	out := make([]api.TemplateDocument, 0, len(in))
	for _, t := range in {
		if t.IsEnabled() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RenderOrder != out[j].RenderOrder {
			return out[i].RenderOrder < out[j].RenderOrder
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// applyDefaults fills declared defaults for absent variables and returns the
// required variables that remain absent.
func applyDefaults(ctx map[string]interface{}, specs []api.VariableSpec) []string {
	var missing []string
	for _, spec := range specs {
		if v, ok := lookupPath(ctx, spec.Name); ok && v != nil {
			continue
		}
		if spec.Default != nil {
			setPath(ctx, spec.Name, spec.Default)
			continue
		}
		if spec.Required {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

func missingVariables(ctx map[string]interface{}, referenced []string) []string {
	var missing []string
	for _, path := range referenced {
		if _, ok := lookupPath(ctx, path); !ok {
			missing = append(missing, path)
		}
	}
	return missing
}
