// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package toolsdk is the SDK for toolhost plugins. It provides the Handler
// interface every tool implements, the Registry that binds handlers to the
// manifest they advertise, the Dispatcher that routes invocations, and the
// Serve entry point for out-of-process plugins.
//
// The registry is the single declarative list behind both the manifest and
// dispatch: a tool cannot be advertised without a handler or handled without
// being advertised.
package toolsdk

import (
	"context"
	"fmt"

	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/wire"
)

// Handler is one declared capability. Descriptor returns the tool's manifest
// entry; Execute runs the tool against a decoded argument payload.
//
// Execute must not let failures escape as panics: return an error and the
// dispatcher will normalize it into the error-object contract. Error text is
// surfaced directly to the calling agent, so it should state what was
// attempted and, where applicable, what corrective call to make next.
type Handler interface {
	Descriptor() manifest.Tool
	Execute(ctx context.Context, args wire.Args) (any, error)
}

// Registry is an immutable mapping from tool id to handler plus the catalog
// the handlers advertise. Construct once, read from any goroutine without
// locking.
type Registry struct {
	order    []string
	handlers map[string]Handler
}

// NewRegistry builds a registry from handlers. Every descriptor is validated
// and its parameter declaration compiled as JSON Schema, so a handler whose
// manifest entry is malformed is rejected at construction rather than
// discovered at invocation time.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{
		handlers: make(map[string]Handler, len(handlers)),
	}

	for _, h := range handlers {
		tool := h.Descriptor()
		if err := (&manifest.Manifest{
			PluginID:     "x.validate",
			Name:         "validate",
			Capabilities: manifest.Capabilities{Tools: []manifest.Tool{tool}},
		}).Validate(); err != nil {
			return nil, fmt.Errorf("handler %q: %w", tool.ID, err)
		}
		if _, err := manifest.CompileParameters(tool); err != nil {
			return nil, err
		}
		if _, dup := r.handlers[tool.ID]; dup {
			return nil, fmt.Errorf("duplicate handler for tool %q", tool.ID)
		}
		r.handlers[tool.ID] = h
		r.order = append(r.order, tool.ID)
	}

	return r, nil
}

// Handler returns the handler for a tool id.
func (r *Registry) Handler(id string) (Handler, bool) {
	h, ok := r.handlers[id]
	return h, ok
}

// Tools returns the tool descriptors in registration order.
func (r *Registry) Tools() []manifest.Tool {
	tools := make([]manifest.Tool, len(r.order))
	for i, id := range r.order {
		tools[i] = r.handlers[id].Descriptor()
	}
	return tools
}

// IDs returns the registered tool ids in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	return len(r.order)
}

// Manifest emits the plugin manifest for this registry with the given
// identity. The tool catalog is derived from the registry itself, which is
// what keeps the manifest and dispatch from drifting apart.
func (r *Registry) Manifest(identity manifest.Manifest) (*manifest.Manifest, error) {
	m := identity
	m.Capabilities = manifest.Capabilities{Tools: r.Tools()}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("registry manifest: %w", err)
	}
	return &m, nil
}
