package config

import (
	"fmt"
	"strings"
)

// Kinds of configuration errors.
const (
	ErrorKindIO         = "io"
	ErrorKindParse      = "parse"
	ErrorKindValidation = "validation"
)

// ConfigurationError is one problem found in a configuration file.
type ConfigurationError struct {
	FilePath string `json:"filePath"`
	Kind     string `json:"kind"`
	Field    string `json:"field,omitempty"` // dotted path, e.g. engine.leaseTTL
	Message  string `json:"message"`
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(filePath, kind, field, message string) ConfigurationError {
	return ConfigurationError{FilePath: filePath, Kind: kind, Field: field, Message: message}
}

func (ce ConfigurationError) Error() string {
	if ce.Field == "" {
		return fmt.Sprintf("%s: %s", ce.FilePath, ce.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ce.FilePath, ce.Field, ce.Message)
}

// ConfigurationErrorCollection reports every problem of a file at once.
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

// NewConfigurationErrorCollection creates an empty collection.
func NewConfigurationErrorCollection() *ConfigurationErrorCollection {
	return &ConfigurationErrorCollection{}
}

func (cec *ConfigurationErrorCollection) Error() string {
	switch len(cec.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return cec.Errors[0].Error()
	default:
		return fmt.Sprintf("%d configuration errors: %s (and %d more)",
			len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
	}
}

// Add appends err.
func (cec *ConfigurationErrorCollection) Add(err ConfigurationError) {
	cec.Errors = append(cec.Errors, err)
}

// HasErrors reports whether the collection is non-empty.
func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

// Count returns the number of errors.
func (cec *ConfigurationErrorCollection) Count() int {
	return len(cec.Errors)
}

// GetDetailedReport lists every error on its own line, grouped by file.
func (cec *ConfigurationErrorCollection) GetDetailedReport() string {
	if len(cec.Errors) == 0 {
		return "No configuration errors to report"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Configuration errors (%d):", len(cec.Errors))
	lastFile := ""
	for _, err := range cec.Errors {
		if err.FilePath != lastFile {
			fmt.Fprintf(&b, "\n  %s", err.FilePath)
			lastFile = err.FilePath
		}
		if err.Field != "" {
			fmt.Fprintf(&b, "\n    - [%s] %s: %s", err.Kind, err.Field, err.Message)
		} else {
			fmt.Fprintf(&b, "\n    - [%s] %s", err.Kind, err.Message)
		}
	}
	return b.String()
}
