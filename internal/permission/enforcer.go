// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package permission resolves per-tool permission policy at invocation time.
//
// Each tool declares a default policy (allow, ask, deny) in the manifest.
// The host may override it with glob rules over tool ids, first match wins:
//
//   - "git_status"  - exact tool
//   - "git_*"       - every git tool
//   - "*"           - every tool
package permission

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gobwas/glob"

	"github.com/toolhost/toolhost/pkg/manifest"
)

// Rule is one host-config override binding a tool id pattern to a policy.
type Rule struct {
	Pattern string
	Policy  manifest.Permission
}

// Decider resolves "ask" policies. Hosts with an interactive surface supply
// one; without it, ask degrades to a deny with an actionable error.
type Decider interface {
	// Approve reports whether the user consented to this invocation.
	Approve(pluginID, toolID string) bool
}

// compiledRule holds a rule and its compiled glob for efficient matching.
type compiledRule struct {
	rule Rule
	glob glob.Glob
}

// Enforcer checks tool permission policy at invocation time.
//
// Enforcer is safe for concurrent use. The zero value is ready to use and
// enforces manifest defaults with no overrides.
type Enforcer struct {
	rules   []compiledRule
	decider Decider
	mu      sync.RWMutex
}

// NewEnforcer creates an enforcer with optional ask-resolution.
func NewEnforcer(decider Decider) *Enforcer {
	return &Enforcer{decider: decider}
}

// SetRules replaces the override rules. All patterns are compiled before
// any state changes, so an invalid rule leaves the enforcer untouched
// (atomic all-or-nothing semantics).
func (e *Enforcer) SetRules(rules []Rule) error {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		if r.Pattern == "" {
			return fmt.Errorf("rule %d: empty tool pattern", i)
		}
		if !r.Policy.Valid() {
			return fmt.Errorf("rule %d (%q): policy must be allow, ask, or deny, got %q", i, r.Pattern, r.Policy)
		}
		g, err := glob.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("rule %d (%q): %w", i, r.Pattern, err)
		}
		compiled[i] = compiledRule{rule: r, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = compiled
	return nil
}

// Resolve returns the effective policy for a tool: the first matching
// override rule, or the tool's own manifest default.
func (e *Enforcer) Resolve(tool manifest.Tool) manifest.Permission {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, r := range e.rules {
		if r.glob.Match(tool.ID) {
			return r.rule.Policy
		}
	}
	return tool.Permission
}

// ErrDenied is returned when policy refuses an invocation.
var ErrDenied = errors.New("invocation denied by permission policy")

// Authorize enforces the effective policy for one invocation. The returned
// error text is surfaced to the calling agent, so it names the override
// that would grant the call.
func (e *Enforcer) Authorize(pluginID string, tool manifest.Tool) error {
	switch e.Resolve(tool) {
	case manifest.PermissionAllow:
		return nil
	case manifest.PermissionDeny:
		return fmt.Errorf("%w: tool %s is denied; remove the deny override or choose another tool", ErrDenied, tool.ID)
	case manifest.PermissionAsk:
		e.mu.RLock()
		decider := e.decider
		e.mu.RUnlock()
		if decider == nil {
			return fmt.Errorf("%w: tool %s requires approval and no approver is configured; add a permissions rule %q: allow to grant it", ErrDenied, tool.ID, tool.ID)
		}
		if !decider.Approve(pluginID, tool.ID) {
			return fmt.Errorf("%w: approval refused for tool %s", ErrDenied, tool.ID)
		}
		return nil
	default:
		// Unknown policies are rejected by manifest validation; deny
		// defensively if one slips through.
		return fmt.Errorf("%w: tool %s has unrecognized policy", ErrDenied, tool.ID)
	}
}
