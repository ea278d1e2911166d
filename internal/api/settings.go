package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ComponentSettings is a tagged variant: exactly the block matching the
// component type is read, the others are ignored. Values holds free-form
// template variables declared by the template's variable schema.
type ComponentSettings struct {
	Webapp *WebappSettings `yaml:"webapp,omitempty" json:"webapp,omitempty"`
	Worker *WorkerSettings `yaml:"worker,omitempty" json:"worker,omitempty"`
	Cron   *CronSettings   `yaml:"cron,omitempty" json:"cron,omitempty"`

	Command Command  `yaml:"command,omitempty" json:"command,omitempty"`
	Envs    []EnvVar `yaml:"envs,omitempty" json:"envs,omitempty"`
	CPU     float64  `yaml:"cpu,omitempty" json:"cpu,omitempty"`
	Memory  int      `yaml:"memory,omitempty" json:"memory,omitempty"`

	Values map[string]interface{} `yaml:"values,omitempty" json:"values,omitempty"`
}

// EnvVar is a container environment variable.
type EnvVar struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// WebappSettings are the webapp specific settings.
type WebappSettings struct {
	Exposure    Exposure     `yaml:"exposure" json:"exposure"`
	URL         string       `yaml:"url,omitempty" json:"url,omitempty"`
	Healthcheck *Healthcheck `yaml:"healthcheck,omitempty" json:"healthcheck,omitempty"`
	Autoscaling *Autoscaling `yaml:"autoscaling,omitempty" json:"autoscaling,omitempty"`
}

// Exposure is how a webapp listens.
type Exposure struct {
	Protocol Protocol `yaml:"type" json:"type"`
	Port     int      `yaml:"port" json:"port"`
}

// Healthcheck configures probes.
type Healthcheck struct {
	Path             string `yaml:"path,omitempty" json:"path,omitempty"`
	Protocol         string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	Port             int    `yaml:"port,omitempty" json:"port,omitempty"`
	Timeout          int    `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Interval         int    `yaml:"interval,omitempty" json:"interval,omitempty"`
	FailureThreshold int    `yaml:"failureThreshold,omitempty" json:"failureThreshold,omitempty"`
}

// Autoscaling bounds the replica count.
type Autoscaling struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// WorkerSettings are the worker specific settings.
type WorkerSettings struct {
	Replicas int `yaml:"replicas,omitempty" json:"replicas,omitempty"`
}

// CronSettings are the cron specific settings.
type CronSettings struct {
	Schedule string `yaml:"schedule" json:"schedule"`
	Suspend  bool   `yaml:"suspend,omitempty" json:"suspend,omitempty"`
}

// Command is a container command. It decodes from either a list or a single
// shell-style string, which is split into arguments.
type Command []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Command) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		args, err := SplitCommand(node.Value)
		if err != nil {
			return err
		}
		*c = args
		return nil
	case yaml.SequenceNode:
		var args []string
		if err := node.Decode(&args); err != nil {
			return err
		}
		*c = args
		return nil
	}
	return fmt.Errorf("line %d: command must be a string or a list", node.Line)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Command) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		args, err := SplitCommand(s)
		if err != nil {
			return err
		}
		*c = args
		return nil
	}
	var args []string
	if err := json.Unmarshal(data, &args); err != nil {
		return fmt.Errorf("command must be a string or a list: %w", err)
	}
	*c = args
	return nil
}

// SplitCommand splits s into arguments following POSIX shell quoting rules
// for single quotes, double quotes and backslash escapes. An empty or blank
// string yields nil.
func SplitCommand(s string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inArg = true
		case quote == '"':
			if r == '"' {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case unicode.IsSpace(r):
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if escaped {
		return nil, fmt.Errorf("command %q ends with an unfinished escape", s)
	}
	if quote != 0 {
		return nil, fmt.Errorf("command %q has an unterminated %c quote", s, quote)
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
