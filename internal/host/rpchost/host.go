// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package rpchost runs external plugins as subprocesses using HashiCorp's
// go-plugin system over gRPC.
package rpchost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"

	"github.com/toolhost/toolhost/internal/host"
	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/toolsdk"
)

// DefaultHandshakeTimeout bounds the manifest exchange during load.
const DefaultHandshakeTimeout = 10 * time.Second

// Compile-time interface check.
var _ host.BinaryRuntime = (*Host)(nil)

// PluginClient wraps go-plugin's client for testability.
type PluginClient interface {
	// Client returns the gRPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct{}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  toolsdk.HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath resolved from plugin specs validated during discovery
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
	})
}

// PluginMap is the host-side plugin map for the handshake.
var PluginMap = map[string]hashiplug.Plugin{
	"plugin": &hostPlugin{},
}

// hostPlugin implements go-plugin's Plugin interface for the host side.
type hostPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
}

// GRPCServer is required by the GRPCPlugin interface but never called on
// the host side.
func (p *hostPlugin) GRPCServer(_ *hashiplug.GRPCBroker, _ *grpc.Server) error {
	return errors.New("rpchost: GRPCServer not implemented on host side")
}

// GRPCClient returns the typed client the host dispenses.
func (p *hostPlugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, cc *grpc.ClientConn) (any, error) {
	return toolsdk.NewPluginClient(cc), nil
}

// Host manages external plugin subprocesses.
type Host struct {
	clientFactory ClientFactory
	plugins       map[string]*loadedPlugin
	mu            sync.RWMutex
	closed        bool
}

// loadedPlugin holds state for a single running plugin process.
type loadedPlugin struct {
	manifest *manifest.Manifest
	client   PluginClient
	plugin   toolsdk.PluginClient
}

// NewHost creates a binary plugin host.
func NewHost() *Host {
	return &Host{
		clientFactory: &DefaultClientFactory{},
		plugins:       make(map[string]*loadedPlugin),
	}
}

// NewHostWithFactory creates a host with a custom client factory (for
// testing). Panics if factory is nil.
func NewHostWithFactory(factory ClientFactory) *Host {
	if factory == nil {
		panic("rpchost: factory cannot be nil")
	}
	return &Host{
		clientFactory: factory,
		plugins:       make(map[string]*loadedPlugin),
	}
}

// Load starts a plugin subprocess, fetches its manifest, and verifies the
// host version gate. Returns the parsed manifest on success.
func (h *Host) Load(ctx context.Context, dp *host.DiscoveredPlugin) (*manifest.Manifest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, host.ErrHostClosed
	}

	execPath := dp.ExecutablePath()
	if _, err := os.Stat(execPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("plugin executable not found: %s: %w", execPath, err)
		}
		return nil, fmt.Errorf("cannot access plugin executable %s: %w", execPath, err)
	}

	client := h.clientFactory.NewClient(execPath)

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin %s: %w", dp.Spec.Name, err)
	}

	raw, err := rpcClient.Dispense("plugin")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin %s: %w", dp.Spec.Name, err)
	}

	pluginClient, ok := raw.(toolsdk.PluginClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s does not implement PluginClient", dp.Spec.Name)
	}

	mfCtx, cancel := context.WithTimeout(ctx, DefaultHandshakeTimeout)
	defer cancel()

	resp, err := pluginClient.GetManifest(mfCtx, &toolsdk.GetManifestRequest{})
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("plugin %s manifest fetch failed: %w", dp.Spec.Name, err)
	}

	m, err := manifest.Parse([]byte(resp.ManifestJSON))
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("plugin %s manifest invalid: %w", dp.Spec.Name, err)
	}
	if err := m.CheckHostVersion(host.Version); err != nil {
		client.Kill()
		return nil, fmt.Errorf("plugin %s: %w", dp.Spec.Name, err)
	}

	if _, dup := h.plugins[m.PluginID]; dup {
		client.Kill()
		return nil, fmt.Errorf("%w: %s", host.ErrPluginAlreadyLoaded, m.PluginID)
	}

	h.plugins[m.PluginID] = &loadedPlugin{
		manifest: m,
		client:   client,
		plugin:   pluginClient,
	}
	return m, nil
}

// Invoke routes one invocation to a plugin process.
//
// The read lock is released before the RPC so one slow plugin cannot
// serialize every other call. If the plugin is killed concurrently the RPC
// fails gracefully.
func (h *Host) Invoke(ctx context.Context, pluginID, capType, toolID, payload string) (string, error) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return "", host.ErrHostClosed
	}
	p, ok := h.plugins[pluginID]
	h.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", host.ErrPluginNotLoaded, pluginID)
	}

	resp, err := p.plugin.Invoke(ctx, &toolsdk.InvokeRequest{
		CapabilityType: &capType,
		CapabilityID:   &toolID,
		Payload:        &payload,
	})
	if err != nil {
		return "", fmt.Errorf("plugin %s invoke failed: %w", pluginID, err)
	}
	if resp.Result == nil {
		return "", fmt.Errorf("plugin %s returned no result for %s", pluginID, toolID)
	}
	return *resp.Result, nil
}

// ManifestJSON re-emits the stored manifest of a loaded plugin.
func (h *Host) ManifestJSON(pluginID string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return "", host.ErrHostClosed
	}
	p, ok := h.plugins[pluginID]
	if !ok {
		return "", fmt.Errorf("%w: %s", host.ErrPluginNotLoaded, pluginID)
	}
	return p.manifest.JSON()
}

// Unload kills a plugin process.
func (h *Host) Unload(_ context.Context, pluginID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return host.ErrHostClosed
	}
	p, ok := h.plugins[pluginID]
	if !ok {
		return fmt.Errorf("%w: %s", host.ErrPluginNotLoaded, pluginID)
	}
	if p.client != nil {
		p.client.Kill()
	}
	delete(h.plugins, pluginID)
	return nil
}

// Plugins returns ids of all loaded plugins.
func (h *Host) Plugins() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil
	}
	ids := make([]string, 0, len(h.plugins))
	for id := range h.plugins {
		ids = append(ids, id)
	}
	return ids
}

// Close shuts down the host and kills all plugin processes.
func (h *Host) Close(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range h.plugins {
		if p.client != nil {
			p.client.Kill()
		}
	}
	h.closed = true
	clear(h.plugins)
	return nil
}
