package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, entityType string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", entityType),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidatePositive checks that a count is at least one.
func ValidatePositive(field string, value int) error {
	if value < 1 {
		return ValidationError{Field: field, Value: value, Message: "must be at least 1"}
	}
	return nil
}

// ValidateDuration checks that a duration is positive.
func ValidateDuration(field string, value time.Duration) error {
	if value <= 0 {
		return ValidationError{Field: field, Value: value, Message: "must be a positive duration"}
	}
	return nil
}

// Validate checks the configuration and returns every problem found.
func (c ShipyardConfig) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(err error) {
		var verr ValidationError
		if err != nil && errors.As(err, &verr) {
			errs = append(errs, verr)
		}
	}

	add(ValidatePositive("engine.renderWorkers", c.Engine.RenderWorkers))
	add(ValidatePositive("engine.applyWorkers", c.Engine.ApplyWorkers))
	add(ValidatePositive("engine.maxAttempts", c.Engine.MaxAttempts))
	add(ValidateDuration("engine.initialBackoff", c.Engine.InitialBackoff))
	add(ValidateDuration("engine.maxBackoff", c.Engine.MaxBackoff))
	add(ValidateDuration("engine.runTimeout", c.Engine.RunTimeout))
	add(ValidateDuration("engine.leaseTTL", c.Engine.LeaseTTL))
	add(ValidateRequired("engine.fieldManager", c.Engine.FieldManager, "engine"))
	if c.Storage.RunRetention < 0 {
		add(ValidationError{Field: "storage.runRetention", Value: c.Storage.RunRetention, Message: "must not be negative"})
	}
	if c.Engine.MaxBackoff > 0 && c.Engine.InitialBackoff > c.Engine.MaxBackoff {
		errs.Add("engine.initialBackoff", "must not exceed engine.maxBackoff", c.Engine.InitialBackoff)
	}
	if c.Engine.LeaseTTL > 0 && c.Engine.LeaseTTL <= c.Engine.RunTimeout {
		errs.Add("engine.leaseTTL", "must exceed engine.runTimeout so a lease outlives its run", c.Engine.LeaseTTL)
	}

	add(ValidateOneOf("lease.backend", c.Lease.Backend, []string{LeaseBackendMemory, LeaseBackendKubernetes}))
	if c.Lease.Backend == LeaseBackendKubernetes {
		add(ValidateRequired("lease.namespace", c.Lease.Namespace, "kubernetes leases"))
	}

	names := make(map[string]bool)
	envs := make(map[string]string)
	defaults := 0
	for i, cluster := range c.Clusters {
		field := fmt.Sprintf("clusters[%d]", i)
		if err := ValidateRequired(field+".name", cluster.Name, "cluster"); err != nil {
			add(err)
		} else if names[cluster.Name] {
			errs.Add(field+".name", "is duplicated", cluster.Name)
		}
		names[cluster.Name] = true
		if cluster.Default {
			defaults++
		}
		if !cluster.Default && len(cluster.Environments) == 0 {
			errs.Add(field+".environments", "must list at least one environment unless the cluster is the default")
		}
		for _, env := range cluster.Environments {
			if other, taken := envs[env]; taken {
				errs.Add(field+".environments", fmt.Sprintf("environment %q is already mapped to cluster %q", env, other), env)
			}
			envs[env] = cluster.Name
		}
		if cluster.Gateway != nil {
			add(ValidateRequired(field+".gateway.namespace", cluster.Gateway.Namespace, "gateway"))
			add(ValidateRequired(field+".gateway.name", cluster.Gateway.Name, "gateway"))
		}
	}
	if defaults > 1 {
		errs.Add("clusters", "at most one cluster can be the default")
	}

	if c.Server.Enabled {
		add(ValidateOneOf("server.transport", c.Server.Transport, []string{MCPTransportStreamableHTTP, MCPTransportStdio}))
		if c.Server.Transport == MCPTransportStreamableHTTP && (c.Server.Port < 1 || c.Server.Port > 65535) {
			errs.Add("server.port", "must be between 1 and 65535", c.Server.Port)
		}
	}
	if c.Metrics.Enabled {
		add(ValidateRequired("metrics.address", c.Metrics.Address, "metrics"))
	}
	if c.Reconcile.Enabled {
		add(ValidatePositive("reconcile.workers", c.Reconcile.Workers))
		add(ValidateDuration("reconcile.initialBackoff", c.Reconcile.InitialBackoff))
		add(ValidateDuration("reconcile.maxBackoff", c.Reconcile.MaxBackoff))
		if c.Reconcile.ResyncInterval < 0 {
			errs.Add("reconcile.resyncInterval", "must not be negative", c.Reconcile.ResyncInterval)
		}
	}
	return errs
}
