// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package wire implements the JSON codec for payloads crossing the plugin
// boundary. Every argument payload entering a tool and every result leaving
// one goes through this package, so there is exactly one escaping routine
// in the system.
package wire

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SecretsField is the reserved argument field under which the host injects
// configured secret values before a handler runs.
const SecretsField = "_secrets"

// Args is a decoded argument payload.
type Args map[string]any

// DecodeError reports a payload that could not be decoded as a JSON object.
// It is a tool-level condition, never a transport failure: callers turn it
// into an {"error": ...} result rather than propagating it.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "invalid arguments: " + e.Reason
}

// Decode parses a raw payload into Args.
//
// The payload is contractually valid JSON but must not be assumed to be:
// an empty or whitespace-only payload decodes to empty Args (tools with no
// required fields treat that as "use defaults"), and anything that fails to
// parse as a JSON object yields a *DecodeError.
func Decode(payload string) (Args, error) {
	if strings.TrimSpace(payload) == "" {
		return Args{}, nil
	}

	var args Args
	if err := json.Unmarshal([]byte(payload), &args); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	if args == nil {
		// "null" parses successfully into a nil map.
		return Args{}, nil
	}
	return args, nil
}

// Encode serializes v to a canonical UTF-8 JSON string. All control
// characters, quotes, and backslashes in embedded strings are escaped;
// numeric fields are emitted as bare JSON numbers.
func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}

// EncodeOrError serializes v, falling back to an error result if the value
// cannot be marshaled. Dispatch paths use this so every exit produces a
// well-formed JSON string.
func EncodeOrError(v any) string {
	s, err := Encode(v)
	if err != nil {
		return ErrorResult("failed to encode result: " + err.Error())
	}
	return s
}

// ErrorResult builds the single-field error object {"error": "<msg>"}.
func ErrorResult(msg string) string {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		// A map[string]string cannot fail to marshal; keep a safe fallback
		// so this path can never panic across the boundary.
		return `{"error": "internal encoding failure"}`
	}
	return string(data)
}

// ErrorResultf is ErrorResult with formatting.
func ErrorResultf(format string, a ...any) string {
	return ErrorResult(fmt.Sprintf(format, a...))
}

// Require checks that all named fields are present and returns the canonical
// invalid-arguments error naming the full required list otherwise.
func (a Args) Require(fields ...string) error {
	var missing []string
	for _, f := range fields {
		if _, ok := a[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("Invalid arguments. Required: %s", strings.Join(fields, ", "))
}

// String returns the named field as a string.
func (a Args) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringOr returns the named string field or def when absent/mistyped.
func (a Args) StringOr(key, def string) string {
	if s, ok := a.String(key); ok {
		return s
	}
	return def
}

// Bool returns the named field as a bool, or def when absent/mistyped.
func (a Args) Bool(key string, def bool) bool {
	v, ok := a[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Int returns the named field as an int. JSON numbers decode as float64;
// non-integral values are rejected.
func (a Args) Int(key string) (int, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// IntOr returns the named integer field or def when absent/mistyped.
func (a Args) IntOr(key string, def int) int {
	if n, ok := a.Int(key); ok {
		return n
	}
	return def
}

// Secrets returns the injected secret mapping, or nil when the host
// injected none. Keys absent from the map mean "not configured".
func (a Args) Secrets() map[string]string {
	v, ok := a[SecretsField]
	if !ok {
		return nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}

// Secret returns one injected secret value.
func (a Args) Secret(id string) (string, bool) {
	s, ok := a.Secrets()[id]
	return s, ok
}

// Keys returns the argument field names in sorted order, excluding the
// reserved secrets field. Used for diagnostics.
func (a Args) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		if k == SecretsField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
