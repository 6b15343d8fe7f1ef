// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package manifest_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolhost/toolhost/pkg/manifest"
)

func validManifest() *manifest.Manifest {
	return &manifest.Manifest{
		PluginID:       "toolhost.devtools",
		Name:           "Developer Tools",
		Description:    "Agent-invoked developer tools",
		License:        "Apache-2.0",
		Authors:        []string{"Toolhost Contributors"},
		MinHostVersion: "0.1.0",
		Capabilities: manifest.Capabilities{
			Tools: []manifest.Tool{
				{
					ID:          "git_status",
					Description: "Show working tree status",
					Parameters: manifest.ParameterSchema{
						Type: "object",
						Properties: map[string]manifest.Property{
							"path": {Type: "string", Description: "Repository path"},
						},
					},
					Requirements: []string{"git"},
					Permission:   manifest.PermissionAllow,
				},
				{
					ID:          "http_fetch",
					Description: "Fetch a URL",
					Parameters: manifest.ParameterSchema{
						Type: "object",
						Properties: map[string]manifest.Property{
							"url": {Type: "string"},
						},
						Required: []string{"url"},
					},
					Permission: manifest.PermissionAsk,
					Secrets: []manifest.Secret{
						{ID: "api_key", Label: "API Key", Required: false},
					},
				},
			},
		},
	}
}

func TestManifest_Validate(t *testing.T) {
	assert.NoError(t, validManifest().Validate())
}

func TestManifest_Validate_PluginID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "reverse dns", id: "toolhost.devtools", wantErr: false},
		{name: "three segments", id: "dev.toolhost.git", wantErr: false},
		{name: "digits allowed", id: "toolhost.v2tools", wantErr: false},
		{name: "single segment", id: "toolhost", wantErr: true},
		{name: "upper case", id: "Toolhost.devtools", wantErr: true},
		{name: "hyphen", id: "tool-host.devtools", wantErr: true},
		{name: "trailing dot", id: "toolhost.", wantErr: true},
		{name: "empty", id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			m.PluginID = tt.id
			err := m.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "plugin_id")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestManifest_Validate_ToolIDs(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "underscored", id: "git_status", wantErr: false},
		{name: "simple", id: "fetch", wantErr: false},
		{name: "digits", id: "fetch2", wantErr: false},
		{name: "upper case", id: "GitStatus", wantErr: true},
		{name: "leading digit", id: "2fetch", wantErr: true},
		{name: "hyphen", id: "git-status", wantErr: true},
		{name: "empty", id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			m.Capabilities.Tools[0].ID = tt.id
			err := m.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestManifest_Validate_DuplicateToolID(t *testing.T) {
	m := validManifest()
	m.Capabilities.Tools[1].ID = m.Capabilities.Tools[0].ID
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool id")
}

func TestManifest_Validate_Permission(t *testing.T) {
	m := validManifest()
	m.Capabilities.Tools[0].Permission = "maybe"
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission_policy")

	m.Capabilities.Tools[0].Permission = ""
	assert.Error(t, m.Validate())
}

func TestManifest_Validate_VersionGates(t *testing.T) {
	m := validManifest()
	m.MinHostVersion = "not-a-version"
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_host_version")

	m = validManifest()
	m.MinOSVersion = "15"
	assert.Error(t, m.Validate())

	m = validManifest()
	m.MinOSVersion = "15.0.0"
	assert.NoError(t, m.Validate())
}

func TestManifest_Validate_RequiredParamMustExist(t *testing.T) {
	m := validManifest()
	m.Capabilities.Tools[1].Parameters.Required = []string{"url", "ghost"}
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestManifest_Validate_Secrets(t *testing.T) {
	m := validManifest()
	m.Capabilities.Tools[1].Secrets = append(m.Capabilities.Tools[1].Secrets,
		manifest.Secret{ID: "api_key", Label: "Duplicate"})
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate secret id")

	m = validManifest()
	m.Capabilities.Tools[1].Secrets[0].Label = ""
	assert.Error(t, m.Validate())
}

func TestManifest_CheckHostVersion(t *testing.T) {
	tests := []struct {
		name    string
		minimum string
		host    string
		wantErr bool
	}{
		{name: "host newer", minimum: "0.1.0", host: "0.2.0", wantErr: false},
		{name: "host equal", minimum: "0.1.0", host: "0.1.0", wantErr: false},
		{name: "host older", minimum: "0.2.0", host: "0.1.0", wantErr: true},
		{name: "no gate", minimum: "", host: "0.0.1", wantErr: false},
		{name: "garbage host version", minimum: "0.1.0", host: "dev", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			m.MinHostVersion = tt.minimum
			err := m.CheckHostVersion(tt.host)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestManifest_JSON_RoundTrip(t *testing.T) {
	m := validManifest()
	out, err := m.JSON()
	require.NoError(t, err)

	parsed, err := manifest.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, m.PluginID, parsed.PluginID)
	assert.Equal(t, m.ToolIDs(), parsed.ToolIDs())

	// Stable for a given build: two emissions are byte-identical.
	again, err := m.JSON()
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestManifest_JSON_FieldNames(t *testing.T) {
	out, err := validManifest().JSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Contains(t, doc, "plugin_id")
	assert.Contains(t, doc, "capabilities")

	caps, ok := doc["capabilities"].(map[string]any)
	require.True(t, ok)
	tools, ok := caps["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 2)

	first, ok := tools[0].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, first, "permission_policy")
	assert.Contains(t, first, "parameters")
}

func TestParse_EmptyAndInvalid(t *testing.T) {
	_, err := manifest.Parse(nil)
	assert.Error(t, err)

	_, err = manifest.Parse([]byte("{not json"))
	assert.Error(t, err)

	_, err = manifest.Parse([]byte(`{"plugin_id": "bad id"}`))
	assert.Error(t, err)
}

func TestManifest_Tool(t *testing.T) {
	m := validManifest()

	tool, ok := m.Tool("git_status")
	require.True(t, ok)
	assert.Equal(t, manifest.PermissionAllow, tool.Permission)

	_, ok = m.Tool("nope")
	assert.False(t, ok)
}
