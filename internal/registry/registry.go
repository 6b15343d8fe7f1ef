// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package registry validates the plugin distribution registry: one JSON
// file per plugin, named after its plugin id, listing released versions and
// their downloadable artifacts.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Platforms a registry artifact may target.
var (
	validOS   = map[string]bool{"macos": true, "linux": true}
	validArch = map[string]bool{"arm64": true, "amd64": true}
)

// Every released version must ship at least one artifact for the primary
// platform.
const (
	primaryOS   = "macos"
	primaryArch = "arm64"
)

var (
	pluginIDPattern = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9]+)+$`)
	sha256Pattern   = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
)

// Artifact is one downloadable binary for a platform.
type Artifact struct {
	OS     string `json:"os"`
	Arch   string `json:"arch"`
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// Requirements gate a release on host capabilities.
type Requirements struct {
	HostMinVersion string `json:"host_min_version,omitempty"`
}

// Release is one published version of a plugin.
type Release struct {
	Version   string        `json:"version"`
	Artifacts []Artifact    `json:"artifacts"`
	Requires  *Requirements `json:"requires,omitempty"`
}

// Entry is one registry file: a plugin and its release history. An empty
// versions list is legal for plugins that are registered but unreleased.
type Entry struct {
	PluginID string    `json:"plugin_id"`
	Versions []Release `json:"versions"`
}

// ParseEntry decodes a registry file.
func ParseEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &e, nil
}

func validSemver(v string) bool {
	_, err := semver.StrictNewVersion(v)
	return err == nil
}

func (a Artifact) validate(context string) error {
	var errs []error
	if a.OS == "" || a.Arch == "" || a.URL == "" || a.SHA256 == "" {
		errs = append(errs, fmt.Errorf("%s: os, arch, url, and sha256 are all required", context))
	}
	if a.OS != "" && !validOS[a.OS] {
		errs = append(errs, fmt.Errorf("%s: invalid os %q", context, a.OS))
	}
	if a.Arch != "" && !validArch[a.Arch] {
		errs = append(errs, fmt.Errorf("%s: invalid arch %q", context, a.Arch))
	}
	if a.URL != "" && !strings.HasPrefix(a.URL, "https://") {
		errs = append(errs, fmt.Errorf("%s: url must start with https://", context))
	}
	if a.SHA256 != "" && !sha256Pattern.MatchString(a.SHA256) {
		errs = append(errs, fmt.Errorf("%s: invalid sha256 checksum format", context))
	}
	return errors.Join(errs...)
}

func (r Release) validate(context string) error {
	var errs []error
	if r.Version == "" {
		errs = append(errs, fmt.Errorf("%s: version is required", context))
	} else if !validSemver(r.Version) {
		errs = append(errs, fmt.Errorf("%s: invalid semantic version %q", context, r.Version))
	}

	if len(r.Artifacts) == 0 {
		errs = append(errs, fmt.Errorf("%s: artifacts must be a non-empty list", context))
	}

	hasPrimary := false
	for i, a := range r.Artifacts {
		actx := fmt.Sprintf("%s artifact[%d]", context, i)
		if err := a.validate(actx); err != nil {
			errs = append(errs, err)
			continue
		}
		if a.OS == primaryOS && a.Arch == primaryArch {
			hasPrimary = true
		}
	}
	if len(r.Artifacts) > 0 && !hasPrimary {
		errs = append(errs, fmt.Errorf("%s: must contain at least one artifact for %s/%s", context, primaryOS, primaryArch))
	}

	if r.Requires != nil && r.Requires.HostMinVersion != "" && !validSemver(r.Requires.HostMinVersion) {
		errs = append(errs, fmt.Errorf("%s: invalid host_min_version %q", context, r.Requires.HostMinVersion))
	}
	return errors.Join(errs...)
}

// Validate checks entry structure. Filename consistency is checked by
// ValidateFile, which knows the path.
func (e *Entry) Validate() error {
	var errs []error
	if !pluginIDPattern.MatchString(e.PluginID) {
		errs = append(errs, fmt.Errorf("plugin_id %q must be lower-case dot-separated (e.g. toolhost.devtools)", e.PluginID))
	}
	for i, r := range e.Versions {
		if err := r.validate(fmt.Sprintf("version[%d]", i)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateFile validates one registry file, including the rule that the
// filename (minus .json) equals the plugin id. seen tracks ids across files
// for case-insensitive uniqueness; pass nil when validating a single file.
func ValidateFile(path string, seen map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	entry, err := ParseEntry(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var errs []error
	filename := filepath.Base(path)
	expected := strings.TrimSuffix(filename, ".json")
	if expected == filename {
		errs = append(errs, fmt.Errorf("%s: registry files must end in .json", path))
	} else if entry.PluginID != expected {
		errs = append(errs, fmt.Errorf("%s: plugin_id %q does not match filename (expected %q)", path, entry.PluginID, expected))
	}

	if err := entry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", path, err))
	}

	if seen != nil {
		lower := strings.ToLower(entry.PluginID)
		if prev, dup := seen[lower]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate plugin_id %q (also in %s)", path, entry.PluginID, prev))
		} else {
			seen[lower] = path
		}
	}
	return errors.Join(errs...)
}

// ValidateDir validates every .json file in a registry directory. An empty
// directory is not an error.
func ValidateDir(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("scan registry directory: %w", err)
	}
	sort.Strings(paths)

	seen := make(map[string]string)
	var errs []error
	for _, path := range paths {
		if err := ValidateFile(path, seen); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
