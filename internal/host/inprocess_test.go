// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package host_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolhost/toolhost/internal/abi"
	"github.com/toolhost/toolhost/internal/host"
	"github.com/toolhost/toolhost/pkg/toolsdk"
)

// stubPlugin is a minimal abi.Plugin for binding tests.
type stubPlugin struct {
	manifestJSON string
	manifestErr  error
	invoke       func(capType, id, payload string) string
	block        chan struct{}
}

func (s *stubPlugin) ManifestJSON() (string, error) {
	if s.manifestErr != nil {
		return "", s.manifestErr
	}
	return s.manifestJSON, nil
}

func (s *stubPlugin) Invoke(_ context.Context, capType, id, payload string) string {
	if s.block != nil {
		<-s.block
	}
	if s.invoke != nil {
		return s.invoke(capType, id, payload)
	}
	return `{"ok": true}`
}

func (s *stubPlugin) Close() error { return nil }

const stubManifest = `{
	"plugin_id": "test.stub",
	"name": "Stub",
	"capabilities": {"tools": [
		{"id": "echo", "description": "echo", "parameters": {"type": "object"}, "permission_policy": "allow"}
	]}
}`

func stubFactory(p *stubPlugin) abi.Factory {
	return func() (abi.Plugin, error) { return p, nil }
}

func TestBindInProcess_Succeeds(t *testing.T) {
	p, err := host.BindInProcess(stubFactory(&stubPlugin{manifestJSON: stubManifest}))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "test.stub", p.Manifest().PluginID)

	doc, err := p.ManifestJSON()
	require.NoError(t, err)
	assert.JSONEq(t, stubManifest, doc)
}

func TestBindInProcess_FactoryFailure(t *testing.T) {
	_, err := host.BindInProcess(func() (abi.Plugin, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialization failed")
}

func TestBindInProcess_InvalidManifest(t *testing.T) {
	_, err := host.BindInProcess(stubFactory(&stubPlugin{manifestJSON: `{"plugin_id": "NOT VALID"}`}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest invalid")
}

func TestBindInProcess_HostVersionGate(t *testing.T) {
	tooNew := `{
		"plugin_id": "test.stub",
		"name": "Stub",
		"min_host_version": "99.0.0",
		"capabilities": {"tools": [
			{"id": "echo", "description": "echo", "parameters": {"type": "object"}, "permission_policy": "allow"}
		]}
	}`
	_, err := host.BindInProcess(stubFactory(&stubPlugin{manifestJSON: tooNew}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "99.0.0")
}

func TestInProcess_InvokeRoundTrip(t *testing.T) {
	stub := &stubPlugin{
		manifestJSON: stubManifest,
		invoke: func(capType, id, payload string) string {
			return `{"type":"` + capType + `","id":"` + id + `"}`
		},
	}
	p, err := host.BindInProcess(stubFactory(stub))
	require.NoError(t, err)
	defer p.Close()

	result, err := p.Invoke(context.Background(), toolsdk.CapabilityTypeTool, "echo", "{}")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool","id":"echo"}`, result)
}

func TestInProcess_InvokeTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	p, err := host.BindInProcess(stubFactory(&stubPlugin{manifestJSON: stubManifest, block: block}))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Invoke(ctx, toolsdk.CapabilityTypeTool, "echo", "{}")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInProcess_CloseIdempotentAndFinal(t *testing.T) {
	p, err := host.BindInProcess(stubFactory(&stubPlugin{manifestJSON: stubManifest}))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Invoke(context.Background(), toolsdk.CapabilityTypeTool, "echo", "{}")
	assert.ErrorIs(t, err, host.ErrPluginNotLoaded)
}
