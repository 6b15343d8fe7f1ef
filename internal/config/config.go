// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package config loads host configuration from a YAML file with command-line
// flag overrides.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/toolhost/toolhost/internal/xdg"
)

// PermissionRule overrides a tool's manifest permission policy. Pattern is a
// glob over tool ids.
type PermissionRule struct {
	Pattern string `koanf:"pattern"`
	Policy  string `koanf:"policy"`
}

// Config holds all host settings.
type Config struct {
	// Workspace is the directory filesystem tools are confined to.
	Workspace string `koanf:"workspace"`

	// PluginsDir is scanned for external plugin directories.
	PluginsDir string `koanf:"plugins_dir"`

	// SecretsFile is the sealed secrets store path.
	SecretsFile string `koanf:"secrets_file"`

	// MetricsAddr is the observability listen address. Empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`

	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format"`

	// InvokeTimeout bounds a single tool invocation.
	InvokeTimeout time.Duration `koanf:"invoke_timeout"`

	// BrowserDataDir holds the browser profile between sessions.
	BrowserDataDir string `koanf:"browser_data_dir"`

	// SearchEndpoint overrides the web search backend URL.
	SearchEndpoint string `koanf:"search_endpoint"`

	// Permissions are host-level overrides applied before manifest defaults.
	Permissions []PermissionRule `koanf:"permissions"`
}

// Default returns the built-in configuration. Paths that depend on XDG
// directories are left empty when the environment cannot resolve them; the
// caller decides whether that is fatal.
func Default() *Config {
	cfg := &Config{
		LogFormat:     "json",
		InvokeTimeout: 30 * time.Second,
	}
	if wd, err := os.Getwd(); err == nil {
		cfg.Workspace = wd
	}
	if dir, err := xdg.PluginsDir(); err == nil {
		cfg.PluginsDir = dir
	}
	if path, err := xdg.SecretsFile(); err == nil {
		cfg.SecretsFile = path
	}
	return cfg
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then flag overrides. An empty path skips the file layer; a named but
// missing file is an error.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrapf(err, "failed to load config file")
		}
	}

	if flags != nil {
		// Only flags the user actually set may override; unset flags would
		// otherwise clobber file values and defaults with empty strings.
		changed := pflag.NewFlagSet("changed", pflag.ContinueOnError)
		flags.Visit(func(f *pflag.Flag) { changed.AddFlag(f) })
		if err := k.Load(posflag.Provider(changed, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				Wrapf(err, "failed to load flag overrides")
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			Wrapf(err, "failed to decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the host cannot run with.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return oops.Code("CONFIG_INVALID").Errorf("workspace must be set")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log_format", c.LogFormat).
			Errorf("log_format must be %q or %q", "json", "text")
	}
	if c.InvokeTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("invoke_timeout must be positive")
	}
	for _, rule := range c.Permissions {
		switch rule.Policy {
		case "allow", "ask", "deny":
		default:
			return oops.Code("CONFIG_INVALID").
				With("pattern", rule.Pattern).
				With("policy", rule.Policy).
				Errorf("permission policy must be allow, ask, or deny")
		}
	}
	return nil
}
