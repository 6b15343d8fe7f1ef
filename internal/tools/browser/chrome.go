// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"
)

// snapshotJS collects the interactive elements of the page. Each entry gets
// a CSS selector stable enough to click until the next navigation.
const snapshotJS = `
(function() {
	var out = [];
	var nodes = document.querySelectorAll('a[href], button, input, select, textarea, [role=button], [onclick]');
	for (var i = 0; i < nodes.length; i++) {
		var n = nodes[i];
		if (n.offsetParent === null && n.tagName !== 'INPUT') continue;
		var name = (n.innerText || n.value || n.getAttribute('aria-label') || n.getAttribute('placeholder') || '').trim();
		var sel;
		if (n.id) {
			sel = '#' + CSS.escape(n.id);
		} else {
			n.setAttribute('data-toolhost-ref', String(i));
			sel = '[data-toolhost-ref="' + i + '"]';
		}
		out.push({role: n.tagName.toLowerCase(), name: name.slice(0, 200), selector: sel});
	}
	return JSON.stringify(out);
})()`

// ChromeConfig configures the chromedp-backed engine.
type ChromeConfig struct {
	// UserDataDir persists cookies and sessions across runs. Empty uses a
	// throwaway profile.
	UserDataDir string
	Logger      *slog.Logger
}

// chromeEngine drives headless Chrome through chromedp. One allocator and
// one browser context live for the whole session.
type chromeEngine struct {
	allocCancel context.CancelFunc
	taskCancel  context.CancelFunc
	taskCtx     context.Context
	logger      *slog.Logger
}

var _ Engine = (*chromeEngine)(nil)

// NewChromeEngine launches headless Chrome. The returned engine is not safe
// for concurrent use; Session serializes access to it.
func NewChromeEngine(cfg ChromeConfig) (Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	// Launch eagerly so a missing Chrome binary surfaces here, not on the
	// first navigation.
	if err := chromedp.Run(taskCtx); err != nil {
		taskCancel()
		allocCancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	logger.Debug("browser engine started")
	return &chromeEngine{
		allocCancel: allocCancel,
		taskCancel:  taskCancel,
		taskCtx:     taskCtx,
		logger:      logger,
	}, nil
}

func (e *chromeEngine) Navigate(ctx context.Context, url string) error {
	return e.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

func (e *chromeEngine) Snapshot(ctx context.Context) ([]Element, error) {
	var raw string
	if err := e.run(ctx, chromedp.Evaluate(snapshotJS, &raw)); err != nil {
		return nil, err
	}
	return decodeSnapshot(raw)
}

func (e *chromeEngine) Click(ctx context.Context, selector string) error {
	return e.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (e *chromeEngine) Evaluate(ctx context.Context, expression string) (string, error) {
	var value string
	wrapped := fmt.Sprintf("String(%s)", expression)
	if err := e.run(ctx, chromedp.Evaluate(wrapped, &value)); err != nil {
		return "", err
	}
	return value, nil
}

func (e *chromeEngine) Close() error {
	e.taskCancel()
	e.allocCancel()
	return nil
}

func decodeSnapshot(raw string) ([]Element, error) {
	var decoded []struct {
		Role     string `json:"role"`
		Name     string `json:"name"`
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	elements := make([]Element, len(decoded))
	for i, d := range decoded {
		elements[i] = Element{Role: d.Role, Name: d.Name, Selector: d.Selector}
	}
	return elements, nil
}

// run executes actions under the caller's deadline while keeping the
// long-lived browser context as the parent.
func (e *chromeEngine) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(e.taskCtx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}
