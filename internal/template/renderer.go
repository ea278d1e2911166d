package template

import (
	"fmt"

	"shipyard/internal/api"
)

// Renderer turns template content and a variable context into manifest text.
type Renderer interface {
	// Name identifies the renderer in errors and logs.
	Name() string
	// Variables returns the dotted context paths referenced by content.
	Variables(content string) ([]string, error)
	// Render executes content against the context.
	Render(name, content string, context map[string]interface{}) (string, error)
}

// NewRenderer returns the built-in renderer for an engine. The empty engine
// selects Go templates.
func NewRenderer(engine api.TemplateEngine) (Renderer, error) {
	switch engine {
	case "", api.TemplateEngineGo:
		return NewGoTemplateRenderer(), nil
	case api.TemplateEnginePlaceholder:
		return NewPlaceholderRenderer(), nil
	}
	return nil, fmt.Errorf("unknown template engine %q", engine)
}
