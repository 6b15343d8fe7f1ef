// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package abi implements the binary interface surface a host loader binds:
// five entry points (free_string, init, destroy, get_manifest, invoke)
// exposed as one immutable function table.
//
// Contexts are addressed through an explicit handle table rather than raw
// pointers, so a stale or forged handle can never become a use-after-free.
// Result strings are owned: they live in an arena until the loader releases
// them through FreeString.
package abi

import (
	"context"
	"log/slog"
	"sync"
)

// Handle is an opaque plugin context handle. The zero Handle is null.
type Handle uint64

// StrPtr is an owned string reference. The zero StrPtr is null.
type StrPtr uint64

// Plugin is the implementation bound behind the entry points: one tool
// registry plus whatever resources its handlers own.
type Plugin interface {
	// ManifestJSON returns the canonical manifest document.
	ManifestJSON() (string, error)

	// Invoke routes one invocation; every outcome is a JSON string.
	Invoke(ctx context.Context, capType, id, payload string) string

	// Close releases everything the plugin exclusively owns.
	Close() error
}

// Factory constructs a fresh Plugin for each init call.
type Factory func() (Plugin, error)

// EntryPoints is the structure a loader binds, fields in the fixed ABI
// order. Loaders bind by this layout, not by per-function name lookup.
type EntryPoints struct {
	FreeString  func(StrPtr)
	Init        func() Handle
	Destroy     func(Handle)
	GetManifest func(Handle) StrPtr
	Invoke      func(h Handle, capType, id, payload *string) StrPtr
}

// Table owns the handle and string arenas behind one plugin binding.
type Table struct {
	factory Factory

	mu       sync.Mutex
	contexts map[Handle]Plugin
	strings  map[StrPtr]string
	nextCtx  Handle
	nextStr  StrPtr
	logger   *slog.Logger
}

// NewTable creates a table for the given plugin factory.
// Panics if factory is nil.
func NewTable(factory Factory) *Table {
	if factory == nil {
		panic("abi: factory cannot be nil")
	}
	return &Table{
		factory:  factory,
		contexts: make(map[Handle]Plugin),
		strings:  make(map[StrPtr]string),
		logger:   slog.Default(),
	}
}

// EntryPoints builds the immutable entry-point table. This is the single
// well-known binding surface: one pure constructor, no global mutable state.
func (t *Table) EntryPoints() EntryPoints {
	return EntryPoints{
		FreeString:  t.freeString,
		Init:        t.init,
		Destroy:     t.destroy,
		GetManifest: t.getManifest,
		Invoke:      t.invoke,
	}
}

// init constructs a new plugin context and returns its handle, or null on
// construction failure.
//
// Calling init again without an intervening destroy is an explicit
// non-guarantee of the ABI: each call simply yields an independent context,
// and no deduplication or error policy is promised.
func (t *Table) init() Handle {
	p, err := t.factory()
	if err != nil {
		t.logger.Error("plugin context construction failed", "error", err)
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextCtx++
	h := t.nextCtx
	t.contexts[h] = p
	return h
}

// destroy releases a context and everything it owns. Null or unknown
// handles are a no-op: shutdown races must never crash the host.
func (t *Table) destroy(h Handle) {
	if h == 0 {
		return
	}

	t.mu.Lock()
	p, ok := t.contexts[h]
	delete(t.contexts, h)
	t.mu.Unlock()

	if !ok {
		return
	}
	if err := p.Close(); err != nil {
		t.logger.Warn("plugin context close failed", "handle", uint64(h), "error", err)
	}
}

// getManifest returns an owned string holding the manifest JSON. The
// context handle may be null or stale; the manifest is static, so any live
// or previously live binding serves it. Returns null only if no context has
// ever been created and none can be consulted.
func (t *Table) getManifest(h Handle) StrPtr {
	p := t.lookup(h)
	if p == nil {
		// Manifest is a pure function of the build; construct a throwaway
		// context to serve it rather than failing a legal call.
		fresh, err := t.factory()
		if err != nil {
			return 0
		}
		defer func() {
			if closeErr := fresh.Close(); closeErr != nil {
				t.logger.Warn("throwaway context close failed", "error", closeErr)
			}
		}()
		p = fresh
	}

	doc, err := p.ManifestJSON()
	if err != nil {
		t.logger.Error("manifest emission failed", "error", err)
		return 0
	}
	return t.intern(doc)
}

// invoke routes one invocation. A null handle or any missing string is the
// transport-level failure and yields a null result; everything past that
// boundary is a well-formed, owned JSON string.
func (t *Table) invoke(h Handle, capType, id, payload *string) StrPtr {
	if capType == nil || id == nil || payload == nil {
		return 0
	}
	p := t.lookup(h)
	if p == nil {
		return 0
	}

	result := p.Invoke(context.Background(), *capType, *id, *payload)
	return t.intern(result)
}

// freeString releases an owned string. Null pointers and double frees are
// no-ops.
func (t *Table) freeString(s StrPtr) {
	if s == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.strings, s)
}

// ReadString dereferences an owned string. The loader reads the result
// before releasing it with FreeString.
func (t *Table) ReadString(s StrPtr) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.strings[s]
	return v, ok
}

// LiveStrings reports how many owned strings are outstanding. Diagnostics
// and leak tests only.
func (t *Table) LiveStrings() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.strings)
}

// LiveContexts reports how many contexts are outstanding.
func (t *Table) LiveContexts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.contexts)
}

func (t *Table) lookup(h Handle) Plugin {
	if h == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contexts[h]
}

func (t *Table) intern(s string) StrPtr {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextStr++
	ptr := t.nextStr
	t.strings[ptr] = s
	return ptr
}
