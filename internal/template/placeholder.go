package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PlaceholderRenderer substitutes {{ path }} and {{ .path }} placeholders
// with values from the context. It has no control flow and no functions.
type PlaceholderRenderer struct {
	// Pattern to match placeholders like {{ .component.name }}
	pattern *regexp.Regexp
}

// NewPlaceholderRenderer creates a placeholder renderer.
func NewPlaceholderRenderer() *PlaceholderRenderer {
	return &PlaceholderRenderer{
		pattern: regexp.MustCompile(`\{\{\s*\.?([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\s*\}\}`),
	}
}

func (r *PlaceholderRenderer) Name() string { return "placeholder" }

// Variables extracts all placeholder paths.
func (r *PlaceholderRenderer) Variables(content string) ([]string, error) {
	seen := map[string]bool{}
	for _, match := range r.pattern.FindAllStringSubmatch(content, -1) {
		if len(match) >= 2 {
			seen[match[1]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Render replaces every placeholder. All missing paths are reported together.
func (r *PlaceholderRenderer) Render(name, content string, context map[string]interface{}) (string, error) {
	var missing []string
	result := r.pattern.ReplaceAllStringFunc(content, func(placeholder string) string {
		path := r.pattern.FindStringSubmatch(placeholder)[1]
		value, ok := lookupPath(context, path)
		if !ok {
			missing = append(missing, path)
			return placeholder
		}
		return formatScalar(value)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%s: missing template variables: %s", name, strings.Join(missing, ", "))
	}
	return result, nil
}

// formatScalar converts a context value to its placeholder text.
func formatScalar(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int, int32, int64:
		return fmt.Sprintf("%d", v)
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
