// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package manifest defines the plugin capability manifest: the static,
// self-describing declaration of a plugin's identity, versioning, and tool
// catalog. The manifest is the sole source of truth for which invocations
// are legal against a loaded plugin.
package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// Permission governs whether the host must obtain user consent before
// invoking a tool.
type Permission string

// Permission policies. Side-effecting tools (network, filesystem mutation,
// subprocess execution, page navigation) default to ask; pure read-only
// tools may default to allow.
const (
	PermissionAllow Permission = "allow"
	PermissionAsk   Permission = "ask"
	PermissionDeny  Permission = "deny"
)

// Valid reports whether p is a known permission policy.
func (p Permission) Valid() bool {
	switch p {
	case PermissionAllow, PermissionAsk, PermissionDeny:
		return true
	}
	return false
}

// Property describes one accepted argument field.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Default     any       `json:"default,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// ParameterSchema is the JSON-Schema-like object describing a tool's
// accepted fields and their required subset.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Secret declares an external credential a tool consumes. Values are never
// part of the manifest; the host injects them into the argument payload at
// invocation time under the reserved secrets field.
type Secret struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Tool is one declared capability.
type Tool struct {
	ID           string          `json:"id"`
	Description  string          `json:"description"`
	Parameters   ParameterSchema `json:"parameters"`
	Requirements []string        `json:"requirements,omitempty"`
	Permission   Permission      `json:"permission_policy"`
	Secrets      []Secret        `json:"secrets,omitempty"`
}

// Capabilities is the capability catalog. Tools is an ordered set: order is
// preserved as declared, ids are unique.
type Capabilities struct {
	Tools []Tool `json:"tools"`
}

// Manifest is a plugin's self-description. Immutable once emitted; fields
// may only ever be added across versions, never removed or retyped.
type Manifest struct {
	PluginID       string       `json:"plugin_id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	License        string       `json:"license,omitempty"`
	Authors        []string     `json:"authors,omitempty"`
	Homepage       string       `json:"homepage,omitempty"`
	MinHostVersion string       `json:"min_host_version,omitempty"`
	MinOSVersion   string       `json:"min_os_version,omitempty"`
	Capabilities   Capabilities `json:"capabilities"`
}

// pluginIDPattern validates reverse-DNS-style plugin ids: lower-case,
// dot-separated, at least two segments (e.g. "toolhost.devtools").
var pluginIDPattern = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9]+)+$`)

// toolIDPattern validates tool ids: must start with a lower-case letter,
// followed by lower-case letters, digits, or underscores.
var toolIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Parse decodes and validates a manifest JSON document.
func Parse(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if !pluginIDPattern.MatchString(m.PluginID) {
		return fmt.Errorf("plugin_id %q must be lower-case dot-separated (e.g. toolhost.devtools)", m.PluginID)
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}

	if m.MinHostVersion != "" {
		if _, err := semver.NewVersion(m.MinHostVersion); err != nil {
			return fmt.Errorf("min_host_version %q: %w", m.MinHostVersion, err)
		}
	}
	if m.MinOSVersion != "" {
		if _, err := semver.NewVersion(m.MinOSVersion); err != nil {
			return fmt.Errorf("min_os_version %q: %w", m.MinOSVersion, err)
		}
	}

	seen := make(map[string]struct{}, len(m.Capabilities.Tools))
	for i, tool := range m.Capabilities.Tools {
		if err := tool.validate(); err != nil {
			return fmt.Errorf("tools[%d]: %w", i, err)
		}
		if _, dup := seen[tool.ID]; dup {
			return fmt.Errorf("tools[%d]: duplicate tool id %q", i, tool.ID)
		}
		seen[tool.ID] = struct{}{}
	}

	return nil
}

func (t *Tool) validate() error {
	if !toolIDPattern.MatchString(t.ID) {
		return fmt.Errorf("id %q must match %s", t.ID, toolIDPattern)
	}
	if t.Description == "" {
		return fmt.Errorf("tool %s: description is required", t.ID)
	}
	if !t.Permission.Valid() {
		return fmt.Errorf("tool %s: permission_policy must be allow, ask, or deny, got %q", t.ID, t.Permission)
	}
	if t.Parameters.Type != "" && t.Parameters.Type != "object" {
		return fmt.Errorf("tool %s: parameters.type must be \"object\", got %q", t.ID, t.Parameters.Type)
	}
	for _, req := range t.Parameters.Required {
		if _, ok := t.Parameters.Properties[req]; !ok {
			return fmt.Errorf("tool %s: required parameter %q has no property declaration", t.ID, req)
		}
	}

	secretIDs := make(map[string]struct{}, len(t.Secrets))
	for _, s := range t.Secrets {
		if s.ID == "" {
			return fmt.Errorf("tool %s: secret id is required", t.ID)
		}
		if s.Label == "" {
			return fmt.Errorf("tool %s: secret %s: label is required", t.ID, s.ID)
		}
		if _, dup := secretIDs[s.ID]; dup {
			return fmt.Errorf("tool %s: duplicate secret id %q", t.ID, s.ID)
		}
		secretIDs[s.ID] = struct{}{}
	}

	return nil
}

// Tool returns the descriptor for the given tool id.
func (m *Manifest) Tool(id string) (Tool, bool) {
	for _, t := range m.Capabilities.Tools {
		if t.ID == id {
			return t, true
		}
	}
	return Tool{}, false
}

// ToolIDs returns the declared tool ids in catalog order.
func (m *Manifest) ToolIDs() []string {
	ids := make([]string, len(m.Capabilities.Tools))
	for i, t := range m.Capabilities.Tools {
		ids[i] = t.ID
	}
	return ids
}

// JSON emits the canonical manifest JSON string. It is a pure function of
// manifest content: stable for a given build, recomputed on demand.
func (m *Manifest) JSON() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	return string(data), nil
}

// CheckHostVersion verifies the min_host_version gate against the running
// host's version. Both sides must be valid semver; an empty gate passes.
func (m *Manifest) CheckHostVersion(hostVersion string) error {
	if m.MinHostVersion == "" {
		return nil
	}
	minimum, err := semver.NewVersion(m.MinHostVersion)
	if err != nil {
		return fmt.Errorf("min_host_version %q: %w", m.MinHostVersion, err)
	}
	host, err := semver.NewVersion(hostVersion)
	if err != nil {
		return fmt.Errorf("host version %q: %w", hostVersion, err)
	}
	if host.LessThan(minimum) {
		return fmt.Errorf("plugin %s requires host >= %s, running %s", m.PluginID, m.MinHostVersion, hostVersion)
	}
	return nil
}
