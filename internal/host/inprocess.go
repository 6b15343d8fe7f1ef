// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/toolhost/toolhost/internal/abi"
	"github.com/toolhost/toolhost/pkg/manifest"
)

// InProcess runs a plugin inside the host process, bound through the same
// entry-point table an external loader binds. Going through the table rather
// than calling the plugin directly keeps one code path for both deployments
// and exercises the handle and string ownership rules constantly.
type InProcess struct {
	table    *abi.Table
	ep       abi.EntryPoints
	manifest *manifest.Manifest

	mu     sync.Mutex
	handle abi.Handle
	closed bool
}

// BindInProcess constructs a plugin context through the entry points and
// verifies its manifest against this host version.
func BindInProcess(factory abi.Factory) (*InProcess, error) {
	table := abi.NewTable(factory)
	ep := table.EntryPoints()

	h := ep.Init()
	if h == 0 {
		return nil, fmt.Errorf("plugin initialization failed")
	}

	ptr := ep.GetManifest(h)
	if ptr == 0 {
		ep.Destroy(h)
		return nil, fmt.Errorf("plugin manifest emission failed")
	}
	doc, ok := table.ReadString(ptr)
	ep.FreeString(ptr)
	if !ok {
		ep.Destroy(h)
		return nil, fmt.Errorf("plugin manifest string was not readable")
	}

	m, err := manifest.Parse([]byte(doc))
	if err != nil {
		ep.Destroy(h)
		return nil, fmt.Errorf("plugin manifest invalid: %w", err)
	}
	if err := m.CheckHostVersion(Version); err != nil {
		ep.Destroy(h)
		return nil, err
	}

	return &InProcess{table: table, ep: ep, manifest: m, handle: h}, nil
}

// Manifest returns the parsed manifest captured at bind time.
func (p *InProcess) Manifest() *manifest.Manifest {
	return p.manifest
}

// ManifestJSON re-emits the manifest through the entry points.
func (p *InProcess) ManifestJSON() (string, error) {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()

	ptr := p.ep.GetManifest(h)
	if ptr == 0 {
		return "", fmt.Errorf("plugin manifest emission failed")
	}
	defer p.ep.FreeString(ptr)
	doc, ok := p.table.ReadString(ptr)
	if !ok {
		return "", fmt.Errorf("plugin manifest string was not readable")
	}
	return doc, nil
}

// Invoke routes one invocation through the entry points. The context bounds
// the wait, not the handler: a handler that outlives the deadline finishes
// against a dead channel and its result is dropped.
func (p *InProcess) Invoke(ctx context.Context, capType, toolID, payload string) (string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrPluginNotLoaded
	}
	h := p.handle
	p.mu.Unlock()

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		ptr := p.ep.Invoke(h, &capType, &toolID, &payload)
		if ptr == 0 {
			done <- outcome{err: fmt.Errorf("plugin returned no result for %s", toolID)}
			return
		}
		result, ok := p.table.ReadString(ptr)
		p.ep.FreeString(ptr)
		if !ok {
			done <- outcome{err: fmt.Errorf("plugin result string was not readable")}
			return
		}
		done <- outcome{result: result}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return "", fmt.Errorf("invocation of %s timed out: %w", toolID, ctx.Err())
	}
}

// Close destroys the plugin context. Idempotent.
func (p *InProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.ep.Destroy(p.handle)
	p.handle = 0
	return nil
}
