package templates

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/helixmesh/orchestrator/internal/workflow"
)

// ErrNotFound is returned for an unknown template name.
var ErrNotFound = errors.New("template not found")

// Registry holds loaded templates by name.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{templates: make(map[string]*Template), logger: logger}
}

// LoadDir loads all templates from dir into the registry, replacing any
// existing template with the same name.
func (r *Registry) LoadDir(dir string) error {
	tpls, err := LoadDir(dir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tpl := range tpls {
		r.templates[tpl.Name] = tpl
		r.logger.Info("Workflow template loaded",
			zap.String("template", tpl.Name),
			zap.Int("tasks", len(tpl.Tasks)),
		)
	}
	return nil
}

// Register adds a template directly, for programmatic registration.
func (r *Registry) Register(tpl *Template) error {
	if err := tpl.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[tpl.Name] = tpl
	return nil
}

// Names returns the registered template names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for n := range r.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definition expands the named template into a workflow submission,
// substituting ${key} placeholders in string parameter values from params.
// Every key the template declares in its parameters list must be present.
func (r *Registry) Definition(name string, params map[string]any) (workflow.Definition, error) {
	r.mu.RLock()
	tpl, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return workflow.Definition{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}

	for _, key := range tpl.Parameters {
		if _, ok := params[key]; !ok {
			return workflow.Definition{}, fmt.Errorf("template %q: missing parameter %q", name, key)
		}
	}

	def := workflow.Definition{
		Name:        tpl.Name,
		Description: tpl.Description,
		Tasks:       make([]workflow.TaskSpec, 0, len(tpl.Tasks)),
	}
	for _, tt := range tpl.Tasks {
		resolved, err := workflow.ParamsFromAny(substituteMap(tt.Parameters, params))
		if err != nil {
			return workflow.Definition{}, fmt.Errorf("template %q task %q: %w", name, tt.Name, err)
		}
		def.Tasks = append(def.Tasks, workflow.TaskSpec{
			Name:         tt.Name,
			AgentType:    tt.AgentType,
			Action:       tt.Action,
			Parameters:   resolved,
			Dependencies: tt.Dependencies,
			TimeoutSecs:  tt.TimeoutSecs,
			MaxRetries:   tt.MaxRetries,
			Optional:     tt.Optional,
		})
	}
	return def, nil
}

// substituteMap resolves ${key} placeholders in string values, recursing
// into nested maps and lists. A string that is exactly one placeholder takes
// the parameter's value with its original type.
func substituteMap(in map[string]any, params map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = substituteValue(v, params)
	}
	return out
}

func substituteValue(v any, params map[string]any) any {
	switch t := v.(type) {
	case string:
		if strings.HasPrefix(t, "${") && strings.HasSuffix(t, "}") && strings.Count(t, "${") == 1 {
			key := t[2 : len(t)-1]
			if pv, ok := params[key]; ok {
				return pv
			}
			return t
		}
		for key, pv := range params {
			if s, ok := pv.(string); ok {
				t = strings.ReplaceAll(t, "${"+key+"}", s)
			}
		}
		return t
	case map[string]any:
		return substituteMap(t, params)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = substituteValue(e, params)
		}
		return out
	default:
		return v
	}
}
