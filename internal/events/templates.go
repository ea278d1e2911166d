package events

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// maxMessageLength keeps messages within what the API server accepts for
// Event.message.
const maxMessageLength = 1024

// MessageTemplateEngine renders event messages from text/template sources
// with the sprig function library.
type MessageTemplateEngine struct {
	mu        sync.RWMutex
	templates map[EventReason]*template.Template
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[EventReason]*template.Template),
	}
	engine.loadDefaultTemplates()
	return engine
}

var defaultTemplates = map[EventReason]string{
	ReasonSyncSucceeded: "Sync {{.RunID}} of instance {{.Instance}} succeeded on cluster {{.Cluster}}" +
		" ({{.Creates}} created, {{.Updates}} updated, {{.Deletes}} deleted){{if .Duration}} in {{.Duration}}{{end}}",
	ReasonSyncPartiallyFailed: "Sync {{.RunID}} of instance {{.Instance}} partially failed" +
		"{{if .Failed}}: components {{join \", \" .Failed}} failed{{end}}",
	ReasonSyncFailed: "Sync {{.RunID}} of instance {{.Instance}} failed{{if .Error}}: {{.Error}}{{end}}",
	ReasonComponentFailed: "Component {{.Component}} of instance {{.Instance}} failed in sync {{.RunID}}" +
		"{{if .Error}}: {{.Error}}{{end}}",
	ReasonVisibilityDowngraded: "Component {{.Component}} of instance {{.Instance}} is {{.Effective}}" +
		" instead of {{.Requested}}: the cluster gateway does not support the requested exposure",
}

// loadDefaultTemplates initializes the default message templates for all event reasons.
func (e *MessageTemplateEngine) loadDefaultTemplates() {
	for reason, src := range defaultTemplates {
		if err := e.SetTemplate(reason, src); err != nil {
			panic(fmt.Sprintf("invalid default template for %s: %v", reason, err))
		}
	}
}

// Render generates a message for the given event reason and data.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	e.mu.RLock()
	tmpl, exists := e.templates[reason]
	e.mu.RUnlock()
	if !exists {
		return fmt.Sprintf("Event %s for instance %s", reason, data.Instance)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Event %s for instance %s (message unavailable: %v)", reason, data.Instance, err)
	}
	return truncate(buf.String(), maxMessageLength)
}

// SetTemplate replaces the message template for a specific event reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, src string) error {
	tmpl, err := template.New(string(reason)).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(src)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[reason] = tmpl
	return nil
}

// HasTemplate reports whether reason has a template.
func (e *MessageTemplateEngine) HasTemplate(reason EventReason) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[reason]
	return ok
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
