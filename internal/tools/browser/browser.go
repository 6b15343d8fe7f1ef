// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package browser implements the browser_navigate, browser_snapshot,
// browser_click, and browser_evaluate tools over a shared headless browser
// session.
//
// The session serializes access: the underlying browser is one shared
// resource, so concurrent invocations queue rather than interleave. Element
// references returned by snapshot carry a generation number; navigation
// advances the generation, and a reference from an older generation is
// rejected as stale rather than clicked on whatever happens to be there now.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/wire"
)

const (
	navigateTimeout = 30 * time.Second
	actionTimeout   = 10 * time.Second
	evaluateTimeout = 5 * time.Second
	maxEvalResult   = 64 * 1024
)

// Element is one interactive element found by snapshot.
type Element struct {
	Ref      string `json:"ref"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Selector string `json:"-"`
}

// Engine drives an actual browser. The chromedp implementation is the real
// one; tests substitute a fake.
type Engine interface {
	Navigate(ctx context.Context, url string) error
	// Snapshot lists interactive elements with stable selectors. Refs are
	// assigned by the session, not the engine.
	Snapshot(ctx context.Context) ([]Element, error)
	Click(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, expression string) (string, error)
	Close() error
}

// EngineFactory constructs the engine on first use.
type EngineFactory func() (Engine, error)

// Session owns the shared browser state behind the four browser tools.
//
// The engine starts lazily on the first invocation that needs it. A failed
// start is captured and returned to every subsequent call without retrying:
// a browser that failed to launch once will fail the same way again, and
// retry storms against a broken environment help nobody.
type Session struct {
	factory EngineFactory

	mu         sync.Mutex
	engine     Engine
	initErr    error
	started    bool
	generation uint64
	elements   map[string]string // ref -> selector, current generation only
	currentURL string
}

// NewSession creates a session around an engine factory. A nil factory uses
// the chromedp engine with default options.
func NewSession(factory EngineFactory) *Session {
	if factory == nil {
		factory = func() (Engine, error) { return NewChromeEngine(ChromeConfig{}) }
	}
	return &Session{factory: factory}
}

// acquire locks the session and returns the live engine, starting it if
// this is the first use.
func (s *Session) acquire() (Engine, error) {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.engine, s.initErr = s.factory()
	}
	if s.initErr != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("Browser engine failed to start: %v", s.initErr)
	}
	return s.engine, nil
}

func (s *Session) release() {
	s.mu.Unlock()
}

// Close shuts the engine down. Safe to call whether or not the engine ever
// started.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil
	}
	err := s.engine.Close()
	s.engine = nil
	s.initErr = errors.New("session closed")
	return err
}

// Generation returns the current navigation generation. Diagnostics only.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// refPrefix ties a reference to its generation: "e3_7" is element 7 of
// generation 3.
func refFor(generation uint64, index int) string {
	return fmt.Sprintf("e%d_%d", generation, index)
}

func staleRef(ref string) error {
	return fmt.Errorf("Stale element reference %s: the page has changed since that snapshot. Call browser_snapshot again and use a fresh reference", ref)
}

// NavigateTool is the browser_navigate handler.
type NavigateTool struct {
	session *Session
}

// NewNavigateTool creates the browser_navigate handler.
func NewNavigateTool(s *Session) *NavigateTool { return &NavigateTool{session: s} }

func (t *NavigateTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "browser_navigate",
		Description: "Navigate the shared browser session to a URL. Invalidates element references from earlier snapshots.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"url": {Type: "string", Description: "Absolute http or https URL."},
			},
			Required: []string{"url"},
		},
		Requirements: []string{"browser"},
		Permission:   manifest.PermissionAsk,
	}
}

func (t *NavigateTool) Execute(ctx context.Context, args wire.Args) (any, error) {
	if err := args.Require("url"); err != nil {
		return nil, err
	}
	url := args.StringOr("url", "")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("Invalid URL: %s", url)
	}

	engine, err := t.session.acquire()
	if err != nil {
		return nil, err
	}
	defer t.session.release()

	ctx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	if err := engine.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("Navigation to %s failed: %v", url, err)
	}

	// The old page is gone; every outstanding reference dies with it.
	t.session.generation++
	t.session.elements = nil
	t.session.currentURL = url

	return map[string]any{"url": url}, nil
}

// SnapshotTool is the browser_snapshot handler.
type SnapshotTool struct {
	session *Session
}

// NewSnapshotTool creates the browser_snapshot handler.
func NewSnapshotTool(s *Session) *SnapshotTool { return &SnapshotTool{session: s} }

func (t *SnapshotTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:           "browser_snapshot",
		Description:  "List the interactive elements on the current page with references usable by browser_click.",
		Parameters:   manifest.ParameterSchema{Type: "object"},
		Requirements: []string{"browser"},
		Permission:   manifest.PermissionAllow,
	}
}

func (t *SnapshotTool) Execute(ctx context.Context, args wire.Args) (any, error) {
	engine, err := t.session.acquire()
	if err != nil {
		return nil, err
	}
	defer t.session.release()

	if t.session.currentURL == "" {
		return nil, errors.New("No page loaded. Call browser_navigate first")
	}

	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	elements, err := engine.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("Snapshot failed: %v", err)
	}

	t.session.elements = make(map[string]string, len(elements))
	out := make([]Element, len(elements))
	for i, el := range elements {
		el.Ref = refFor(t.session.generation, i)
		t.session.elements[el.Ref] = el.Selector
		out[i] = el
	}

	return map[string]any{"url": t.session.currentURL, "elements": out}, nil
}

// ClickTool is the browser_click handler.
type ClickTool struct {
	session *Session
}

// NewClickTool creates the browser_click handler.
func NewClickTool(s *Session) *ClickTool { return &ClickTool{session: s} }

func (t *ClickTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "browser_click",
		Description: "Click an element by the reference a browser_snapshot returned.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"ref": {Type: "string", Description: "Element reference from the latest snapshot, e.g. e3_7."},
			},
			Required: []string{"ref"},
		},
		Requirements: []string{"browser"},
		Permission:   manifest.PermissionAsk,
	}
}

func (t *ClickTool) Execute(ctx context.Context, args wire.Args) (any, error) {
	if err := args.Require("ref"); err != nil {
		return nil, err
	}
	ref := args.StringOr("ref", "")

	engine, err := t.session.acquire()
	if err != nil {
		return nil, err
	}
	defer t.session.release()

	selector, ok := t.session.elements[ref]
	if !ok {
		return nil, staleRef(ref)
	}

	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	if err := engine.Click(ctx, selector); err != nil {
		return nil, fmt.Errorf("Click on %s failed: %v", ref, err)
	}
	return map[string]any{"ref": ref, "clicked": true}, nil
}

// EvaluateTool is the browser_evaluate handler.
type EvaluateTool struct {
	session *Session
}

// NewEvaluateTool creates the browser_evaluate handler.
func NewEvaluateTool(s *Session) *EvaluateTool { return &EvaluateTool{session: s} }

func (t *EvaluateTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "browser_evaluate",
		Description: "Evaluate a JavaScript expression on the current page and return its string value.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"expression": {Type: "string", Description: "JavaScript expression."},
			},
			Required: []string{"expression"},
		},
		Requirements: []string{"browser"},
		Permission:   manifest.PermissionAsk,
	}
}

func (t *EvaluateTool) Execute(ctx context.Context, args wire.Args) (any, error) {
	if err := args.Require("expression"); err != nil {
		return nil, err
	}

	engine, err := t.session.acquire()
	if err != nil {
		return nil, err
	}
	defer t.session.release()

	if t.session.currentURL == "" {
		return nil, errors.New("No page loaded. Call browser_navigate first")
	}

	ctx, cancel := context.WithTimeout(ctx, evaluateTimeout)
	defer cancel()

	value, err := engine.Evaluate(ctx, args.StringOr("expression", ""))
	if err != nil {
		return nil, fmt.Errorf("Evaluation failed: %v", err)
	}
	truncated := false
	if len(value) > maxEvalResult {
		value = value[:maxEvalResult]
		truncated = true
	}
	return map[string]any{"value": value, "truncated": truncated}, nil
}
