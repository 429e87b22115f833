// Package assets lists the configuration documents and templates shipped
// with the server.
package assets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned for names that don't resolve to a file in the
// asset directory.
var ErrNotFound = errors.New("asset not found")

// Template is a template directory.
type Template struct {
	Name string `json:"name"`
}

// ListConfigs returns the names of the config files in dir.
func ListConfigs(dir string) ([]string, error) {
	entries, err := readDir(dir)
	if err != nil {
		return nil, fmt.Errorf("assets.ListConfigs: %w", err)
	}
	configs := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && !hidden(e.Name()) {
			configs = append(configs, e.Name())
		}
	}
	return configs, nil
}

// ListTemplates returns the template directories in dir.
func ListTemplates(dir string) ([]Template, error) {
	entries, err := readDir(dir)
	if err != nil {
		return nil, fmt.Errorf("assets.ListTemplates: %w", err)
	}
	templates := []Template{}
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			templates = append(templates, Template{Name: e.Name()})
		}
	}
	return templates, nil
}

// ReadConfig returns the named config as JSON. YAML configs are converted.
func ReadConfig(dir, name string) ([]byte, error) {
	if dir == "" || name == "" || hidden(name) || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("assets.ReadConfig: %q: %w", name, ErrNotFound)
	}
	b, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("assets.ReadConfig: %q: %w", name, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("assets.ReadConfig: %w", err)
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var v any
		if err = yaml.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("assets.ReadConfig: %q: %w", name, err)
		}
		if b, err = json.Marshal(stringKeys(v)); err != nil {
			return nil, fmt.Errorf("assets.ReadConfig: %q: %w", name, err)
		}
		return b, nil
	default:
		if !json.Valid(bytes.TrimSpace(b)) {
			return nil, fmt.Errorf("assets.ReadConfig: %q: invalid JSON", name)
		}
		return b, nil
	}
}

// stringKeys converts YAML mappings with non-string keys, such as
// `1: Red Line`, to maps JSON can encode.
func stringKeys(v any) any {
	switch v := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = stringKeys(val)
		}
		return m
	case map[string]any:
		for k, val := range v {
			v[k] = stringKeys(val)
		}
		return v
	case []any:
		for i, val := range v {
			v[i] = stringKeys(val)
		}
		return v
	default:
		return v
	}
}

// readDir is os.ReadDir that treats an unset or missing dir as empty.
func readDir(dir string) ([]os.DirEntry, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b os.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return entries, nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
