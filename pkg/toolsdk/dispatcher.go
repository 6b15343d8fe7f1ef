// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package toolsdk

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/toolhost/toolhost/pkg/wire"
)

// CapabilityTypeTool is the only capability type currently defined. Other
// types are rejected with a protocol error.
const CapabilityTypeTool = "tool"

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// newInvocationID generates a ULID identifying one invocation in logs.
func newInvocationID() string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Observer receives the outcome of each dispatched invocation. Used by the
// host to feed metrics without coupling the dispatcher to a metrics backend.
type Observer interface {
	ObserveInvocation(toolID, status string, elapsed time.Duration)
}

// Invocation outcome statuses reported to the Observer.
const (
	StatusOK           = "ok"
	StatusError        = "error"
	StatusUnknownType  = "unknown_type"
	StatusUnknownTool  = "unknown_tool"
	StatusInvalidArgs  = "invalid_args"
	StatusHandlerPanic = "panic"
)

// Dispatcher routes (capability type, capability id, payload) triples to the
// matching handler and normalizes every failure mode into the error-object
// contract. It never panics across its boundary and every return value is a
// freshly allocated string.
//
// The handler mapping is immutable after construction, so Invoke is safe for
// concurrent use; serialization of shared session state is a handler-local
// concern.
type Dispatcher struct {
	reg      *Registry
	logger   *slog.Logger
	observer Observer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatch logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithObserver sets the invocation outcome observer.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// NewDispatcher creates a dispatcher over an immutable registry.
// Panics if reg is nil.
func NewDispatcher(reg *Registry, opts ...DispatcherOption) *Dispatcher {
	if reg == nil {
		panic("toolsdk: registry cannot be nil")
	}
	d := &Dispatcher{
		reg:    reg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry {
	return d.reg
}

// Invoke executes one invocation and returns the result JSON string.
//
// Transport-level validation (nil context handle, missing strings) happens
// at the ABI layer, which returns null before reaching this method. Here
// every outcome is a well-formed JSON string: protocol errors for unknown
// capability types or tool ids, the canonical invalid-arguments error for
// undecodable payloads, and a normalized {"error": ...} for any handler
// failure including panics.
func (d *Dispatcher) Invoke(ctx context.Context, capType, id, payload string) string {
	invID := newInvocationID()
	start := time.Now()

	result, status := d.invoke(ctx, capType, id, payload)

	elapsed := time.Since(start)
	if d.observer != nil {
		d.observer.ObserveInvocation(id, status, elapsed)
	}
	d.logger.Debug("invocation complete",
		"invocation_id", invID,
		"tool", id,
		"status", status,
		"elapsed", elapsed)

	return result
}

func (d *Dispatcher) invoke(ctx context.Context, capType, id, payload string) (result, status string) {
	if capType != CapabilityTypeTool {
		return wire.ErrorResult("Unknown capability type"), StatusUnknownType
	}

	handler, ok := d.reg.Handler(id)
	if !ok {
		return wire.ErrorResultf("Unknown tool: %s", id), StatusUnknownTool
	}

	args, err := wire.Decode(payload)
	if err != nil {
		return wire.ErrorResultf("Invalid arguments. Payload must be a JSON object: %v", err), StatusInvalidArgs
	}

	return d.execute(ctx, handler, id, args)
}

// execute runs the handler with panic containment. A panicking handler must
// terminate in a returned error string, never an unrecovered fault.
func (d *Dispatcher) execute(ctx context.Context, handler Handler, id string, args wire.Args) (result, status string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool handler panicked",
				"tool", id,
				"panic", r)
			result = wire.ErrorResultf("%s failed unexpectedly: %v", id, r)
			status = StatusHandlerPanic
		}
	}()

	out, err := handler.Execute(ctx, args)
	if err != nil {
		return wire.ErrorResult(err.Error()), StatusError
	}
	return wire.EncodeOrError(out), StatusOK
}
