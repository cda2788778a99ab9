package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes a single workflow definition from YAML and normalizes it.
func Parse(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse workflow: %w", err)
	}
	return def.Normalized()
}

// LoadFile reads and parses one workflow definition file.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read workflow %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadDir loads every .yaml/.yml workflow in dir, sorted by name. Workflow
// names must be unique across the directory.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflow dir %s: %w", dir, err)
	}

	var defs []Definition
	seen := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("workflow %s defined in both %s and %s", def.Name, prev, path)
		}
		seen[def.Name] = path
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}
