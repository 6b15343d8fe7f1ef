// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package host

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// PluginSpec represents a plugin.yaml file describing one external plugin.
type PluginSpec struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	Executable string `yaml:"executable"`
}

// maxNameLength is the maximum allowed length for plugin directory names.
const maxNameLength = 64

// namePattern validates plugin names: must start with a lowercase letter,
// followed by lowercase letters, digits, or hyphens, and cannot end with a
// hyphen.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParsePluginSpec parses and validates a plugin.yaml file.
func ParsePluginSpec(data []byte) (*PluginSpec, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("plugin spec is empty")
	}

	var s PluginSpec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks plugin spec constraints.
func (s *PluginSpec) Validate() error {
	if s.Name == "" || !namePattern.MatchString(s.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", s.Name)
	}
	if len(s.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(s.Name))
	}
	if s.Version == "" {
		return fmt.Errorf("version is required")
	}
	if s.Executable == "" {
		return fmt.Errorf("executable is required")
	}
	return nil
}

// DiscoveredPlugin contains a plugin spec and its directory.
type DiscoveredPlugin struct {
	Spec *PluginSpec
	Dir  string
}

// ExecutablePath returns the full path to the plugin binary.
func (d *DiscoveredPlugin) ExecutablePath() string {
	return filepath.Join(d.Dir, d.Spec.Executable)
}

// Discover finds all valid plugins under dir. Each plugin lives in its own
// subdirectory with a plugin.yaml. Invalid entries are logged and skipped so
// one broken plugin cannot block the rest.
func Discover(dir string, logger *slog.Logger) ([]*DiscoveredPlugin, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plugins directory: %w", err)
	}

	var plugins []*DiscoveredPlugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(pluginDir, "plugin.yaml"))
		if err != nil {
			logger.Warn("skipping plugin without spec", "dir", entry.Name(), "error", err)
			continue
		}

		spec, err := ParsePluginSpec(data)
		if err != nil {
			logger.Warn("skipping plugin with invalid spec", "dir", entry.Name(), "error", err)
			continue
		}

		plugins = append(plugins, &DiscoveredPlugin{Spec: spec, Dir: pluginDir})
	}
	return plugins, nil
}
