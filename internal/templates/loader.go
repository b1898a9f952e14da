package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile parses and validates a single template file. Unknown YAML keys
// are rejected so typos surface at load time.
func LoadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	var tpl Template
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&tpl); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	if tpl.Name == "" {
		tpl.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := tpl.Validate(); err != nil {
		return nil, fmt.Errorf("validate template %s: %w", path, err)
	}
	return &tpl, nil
}

// LoadDir loads every .yaml/.yml file in dir. A missing directory is not an
// error; templates are optional.
func LoadDir(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read template dir %s: %w", dir, err)
	}
	var out []*Template
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		tpl, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, nil
}
