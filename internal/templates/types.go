// Package templates loads reusable workflow definitions from YAML files and
// expands them into concrete workflow submissions.
package templates

import (
	"fmt"
	"strings"
)

// Template is one YAML workflow template.
type Template struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Parameters  []string       `yaml:"parameters,omitempty"` // required substitution keys
	Tasks       []TaskTemplate `yaml:"tasks"`
}

// TaskTemplate is one task inside a template. String parameter values may
// contain ${key} placeholders substituted at expansion time.
type TaskTemplate struct {
	Name         string         `yaml:"name"`
	AgentType    string         `yaml:"agent_type"`
	Action       string         `yaml:"action"`
	Parameters   map[string]any `yaml:"parameters,omitempty"`
	Dependencies []string       `yaml:"dependencies,omitempty"`
	TimeoutSecs  int            `yaml:"timeout_seconds,omitempty"`
	MaxRetries   int            `yaml:"max_retries,omitempty"`
	Optional     bool           `yaml:"optional,omitempty"`
}

// Validate checks structural validity; graph-level validation (cycles,
// dangling dependencies) happens when the expanded workflow is created.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if len(t.Tasks) == 0 {
		return fmt.Errorf("template %q has no tasks", t.Name)
	}
	seen := make(map[string]bool, len(t.Tasks))
	for i, task := range t.Tasks {
		if strings.TrimSpace(task.Name) == "" {
			return fmt.Errorf("template %q: task %d has no name", t.Name, i)
		}
		if task.AgentType == "" || task.Action == "" {
			return fmt.Errorf("template %q: task %q needs agent_type and action", t.Name, task.Name)
		}
		if seen[task.Name] {
			return fmt.Errorf("template %q: duplicate task name %q", t.Name, task.Name)
		}
		seen[task.Name] = true
	}
	return nil
}
