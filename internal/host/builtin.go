// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package host

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/toolhost/toolhost/internal/abi"
	"github.com/toolhost/toolhost/internal/tools/browser"
	"github.com/toolhost/toolhost/internal/tools/fetch"
	"github.com/toolhost/toolhost/internal/tools/fsops"
	"github.com/toolhost/toolhost/internal/tools/git"
	"github.com/toolhost/toolhost/internal/tools/websearch"
	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/toolsdk"
)

// BuiltinPluginID identifies the in-process devtools plugin.
const BuiltinPluginID = "toolhost.devtools"

// BuiltinIdentity is the manifest identity of the builtin plugin. The tool
// catalog is derived from the registry at construction time.
func BuiltinIdentity() manifest.Manifest {
	return manifest.Manifest{
		PluginID:       BuiltinPluginID,
		Name:           "Toolhost DevTools",
		Description:    "Git, HTTP, web search, filesystem, and browser tools for coding agents.",
		License:        "Apache-2.0",
		Authors:        []string{"Toolhost Contributors"},
		Homepage:       "https://github.com/toolhost/toolhost",
		MinHostVersion: "0.1.0",
	}
}

// BuiltinConfig configures the builtin plugin. The zero value uses the git
// binary on PATH, a default HTTP client, the real search endpoint, the
// current directory as workspace, and headless Chrome on first browser use.
type BuiltinConfig struct {
	Workspace      string
	GitRunner      git.Runner
	HTTPClient     *http.Client
	SearchOptions  []websearch.Option
	BrowserFactory browser.EngineFactory
	Logger         *slog.Logger
	Observer       toolsdk.Observer
}

// Builtin is the in-process devtools plugin.
type Builtin struct {
	registry   *toolsdk.Registry
	dispatcher *toolsdk.Dispatcher
	session    *browser.Session
	identity   manifest.Manifest
}

var _ abi.Plugin = (*Builtin)(nil)

// NewBuiltin assembles the builtin plugin: one registry holding every
// devtools handler, one dispatcher over it, one shared browser session.
func NewBuiltin(cfg BuiltinConfig) (*Builtin, error) {
	root, err := fsops.NewRoot(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("builtin workspace: %w", err)
	}
	session := browser.NewSession(cfg.BrowserFactory)

	registry, err := toolsdk.NewRegistry(
		git.NewStatusTool(cfg.GitRunner),
		git.NewLogTool(cfg.GitRunner),
		git.NewDiffTool(cfg.GitRunner),
		fetch.New(cfg.HTTPClient),
		websearch.New(cfg.SearchOptions...),
		fsops.NewReadTool(root),
		fsops.NewWriteTool(root),
		fsops.NewListTool(root),
		fsops.NewDeleteTool(root),
		browser.NewNavigateTool(session),
		browser.NewSnapshotTool(session),
		browser.NewClickTool(session),
		browser.NewEvaluateTool(session),
	)
	if err != nil {
		return nil, fmt.Errorf("builtin registry: %w", err)
	}

	var opts []toolsdk.DispatcherOption
	if cfg.Logger != nil {
		opts = append(opts, toolsdk.WithLogger(cfg.Logger))
	}
	if cfg.Observer != nil {
		opts = append(opts, toolsdk.WithObserver(cfg.Observer))
	}

	return &Builtin{
		registry:   registry,
		dispatcher: toolsdk.NewDispatcher(registry, opts...),
		session:    session,
		identity:   BuiltinIdentity(),
	}, nil
}

// BuiltinFactory returns a factory producing independent builtin contexts.
func BuiltinFactory(cfg BuiltinConfig) abi.Factory {
	return func() (abi.Plugin, error) {
		return NewBuiltin(cfg)
	}
}

// ManifestJSON emits the canonical manifest. Static for a given build.
func (b *Builtin) ManifestJSON() (string, error) {
	m, err := b.registry.Manifest(b.identity)
	if err != nil {
		return "", err
	}
	return m.JSON()
}

// Invoke routes one invocation through the dispatcher.
func (b *Builtin) Invoke(ctx context.Context, capType, id, payload string) string {
	return b.dispatcher.Invoke(ctx, capType, id, payload)
}

// Close releases the browser session. Other handlers hold no exclusive
// resources.
func (b *Builtin) Close() error {
	return b.session.Close()
}
