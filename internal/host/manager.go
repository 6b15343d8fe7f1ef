// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package host

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/toolhost/toolhost/internal/abi"
	"github.com/toolhost/toolhost/internal/permission"
	"github.com/toolhost/toolhost/internal/secrets"
	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/toolsdk"
	"github.com/toolhost/toolhost/pkg/wire"
)

// BinaryRuntime runs external plugin processes. Implemented by
// rpchost.Host; an interface here keeps the dependency pointing outward.
type BinaryRuntime interface {
	Load(ctx context.Context, dp *DiscoveredPlugin) (*manifest.Manifest, error)
	Invoke(ctx context.Context, pluginID, capType, toolID, payload string) (string, error)
	ManifestJSON(pluginID string) (string, error)
	Unload(ctx context.Context, pluginID string) error
	Close(ctx context.Context) error
}

// SecretSource supplies configured secret values. Implemented by
// secrets.Store.
type SecretSource interface {
	Load() (map[string]string, error)
}

// invoker routes invocations for one loaded plugin.
type invoker interface {
	Invoke(ctx context.Context, capType, toolID, payload string) (string, error)
}

// binaryInvoker adapts a BinaryRuntime to a per-plugin invoker.
type binaryInvoker struct {
	runtime  BinaryRuntime
	pluginID string
}

func (b binaryInvoker) Invoke(ctx context.Context, capType, toolID, payload string) (string, error) {
	return b.runtime.Invoke(ctx, b.pluginID, capType, toolID, payload)
}

// loadedEntry is one plugin the manager routes to.
type loadedEntry struct {
	manifest  *manifest.Manifest
	invoker   invoker
	inprocess *InProcess // non-nil for in-process plugins, closed by the manager
}

// Manager is the single invocation choke point: it resolves the plugin,
// enforces permission policy, injects secrets, bounds the call, and routes
// it to the right runtime.
type Manager struct {
	enforcer *permission.Enforcer
	source   SecretSource
	binary   BinaryRuntime
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.RWMutex
	plugins map[string]*loadedEntry
	closed  bool

	secretsOnce sync.Once
	secretVals  map[string]string
	secretErr   error
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithEnforcer sets the permission enforcer. Defaults to manifest-default
// policies with no overrides.
func WithEnforcer(e *permission.Enforcer) ManagerOption {
	return func(m *Manager) { m.enforcer = e }
}

// WithSecretSource sets where injected secret values come from. Without
// one, tools declaring required secrets fail with an actionable error.
func WithSecretSource(s SecretSource) ManagerOption {
	return func(m *Manager) { m.source = s }
}

// WithBinaryRuntime enables external plugin loading.
func WithBinaryRuntime(r BinaryRuntime) ManagerOption {
	return func(m *Manager) { m.binary = r }
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithInvokeTimeout overrides the per-invocation deadline.
func WithInvokeTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = d }
}

// NewManager creates a plugin manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		enforcer: permission.NewEnforcer(nil),
		logger:   slog.Default(),
		timeout:  DefaultInvokeTimeout,
		plugins:  make(map[string]*loadedEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterBuiltin binds an in-process plugin through the entry-point table
// and registers it under its manifest plugin id.
func (m *Manager) RegisterBuiltin(factory abi.Factory) error {
	p, err := BindInProcess(factory)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		_ = p.Close()
		return ErrHostClosed
	}
	id := p.Manifest().PluginID
	if _, dup := m.plugins[id]; dup {
		_ = p.Close()
		return ErrPluginAlreadyLoaded
	}

	m.plugins[id] = &loadedEntry{manifest: p.Manifest(), invoker: p, inprocess: p}
	m.logger.Info("registered in-process plugin", "plugin", id, "tools", len(p.Manifest().Capabilities.Tools))
	return nil
}

// LoadAll discovers external plugins under dir and loads them. Individual
// failures are logged and skipped so the host still starts with whatever
// loads cleanly.
func (m *Manager) LoadAll(ctx context.Context, dir string) error {
	discovered, err := Discover(dir, m.logger)
	if err != nil {
		return err
	}
	if len(discovered) > 0 && m.binary == nil {
		m.logger.Warn("no binary runtime configured, skipping external plugins", "count", len(discovered))
		return nil
	}

	for _, dp := range discovered {
		mf, err := m.binary.Load(ctx, dp)
		if err != nil {
			m.logger.Error("failed to load plugin", "plugin", dp.Spec.Name, "error", err)
			continue
		}

		m.mu.Lock()
		if _, dup := m.plugins[mf.PluginID]; dup {
			m.mu.Unlock()
			m.logger.Error("duplicate plugin id, unloading", "plugin", mf.PluginID)
			_ = m.binary.Unload(ctx, mf.PluginID)
			continue
		}
		m.plugins[mf.PluginID] = &loadedEntry{
			manifest: mf,
			invoker:  binaryInvoker{runtime: m.binary, pluginID: mf.PluginID},
		}
		m.mu.Unlock()

		m.logger.Info("loaded plugin", "plugin", mf.PluginID, "version", dp.Spec.Version, "tools", len(mf.Capabilities.Tools))
	}
	return nil
}

// Invoke routes one tool invocation. Policy denials and injection failures
// are returned as well-formed error results, not Go errors: the agent can
// act on them. Go errors mean the host itself could not route the call.
func (m *Manager) Invoke(ctx context.Context, pluginID, toolID, payload string) (string, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return "", ErrHostClosed
	}
	entry, ok := m.plugins[pluginID]
	m.mu.RUnlock()

	if !ok {
		return "", ErrPluginNotLoaded
	}

	// Unknown tools pass through so the plugin's dispatcher produces the
	// canonical error result.
	if tool, ok := entry.manifest.Tool(toolID); ok {
		if err := m.enforcer.Authorize(pluginID, tool); err != nil {
			m.logger.Warn("invocation denied", "plugin", pluginID, "tool", toolID, "error", err)
			return wire.ErrorResult(err.Error()), nil
		}

		if len(tool.Secrets) > 0 {
			values, err := m.secretValues()
			if err != nil {
				m.logger.Error("secret store unavailable", "error", err)
				return wire.ErrorResult("Secret store unavailable: " + err.Error()), nil
			}
			payload, err = secrets.Inject(payload, tool.Secrets, values)
			if err != nil {
				return wire.ErrorResult(err.Error()), nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	return entry.invoker.Invoke(ctx, toolsdk.CapabilityTypeTool, toolID, payload)
}

// ManifestJSON emits the manifest of a loaded plugin.
func (m *Manager) ManifestJSON(pluginID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrHostClosed
	}
	entry, ok := m.plugins[pluginID]
	if !ok {
		return "", ErrPluginNotLoaded
	}
	return entry.manifest.JSON()
}

// Manifest returns the parsed manifest of a loaded plugin.
func (m *Manager) Manifest(pluginID string) (*manifest.Manifest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.plugins[pluginID]
	if !ok {
		return nil, false
	}
	return entry.manifest, true
}

// Plugins returns loaded plugin ids in sorted order.
func (m *Manager) Plugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil
	}
	ids := make([]string, 0, len(m.plugins))
	for id := range m.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close shuts down every plugin and the binary runtime.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for id, entry := range m.plugins {
		if entry.inprocess == nil {
			continue
		}
		if err := entry.inprocess.Close(); err != nil {
			m.logger.Warn("in-process plugin close failed", "plugin", id, "error", err)
		}
	}
	clear(m.plugins)

	if m.binary != nil {
		return m.binary.Close(ctx)
	}
	return nil
}

// secretValues loads the secret store once and caches the values. Key
// derivation is deliberately expensive, so it must not run per invocation.
func (m *Manager) secretValues() (map[string]string, error) {
	m.secretsOnce.Do(func() {
		if m.source == nil {
			m.secretVals = map[string]string{}
			return
		}
		m.secretVals, m.secretErr = m.source.Load()
	})
	return m.secretVals, m.secretErr
}
