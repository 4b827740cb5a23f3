// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package output

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/deckbridge/internal/host"
	xglog "github.com/ManuGH/deckbridge/internal/log"
	"github.com/ManuGH/deckbridge/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	// ErrNoActiveOutput is returned by Bind when the host has no output of the kind.
	ErrNoActiveOutput = errors.New("no active output")
	// ErrConnectFailed wraps a signal bus connect failure during Bind.
	ErrConnectFailed = errors.New("signal connect failed")
)

// SignalEvent is one host callback, tagged with the kind and signal it was
// registered for.
type SignalEvent struct {
	Kind     host.OutputKind
	Signal   host.Signal
	Data     host.Calldata
	Received time.Time
}

// DeliverFunc receives every callback of a bound output. It runs on the
// host's goroutine and must not block.
type DeliverFunc func(ev SignalEvent)

type binding struct {
	handle host.Handle
	slots  []host.SlotID
}

// Registry holds the currently bound output handle per kind and owns its
// signal bus subscriptions. It is not safe for concurrent use; callers
// serialize through the dispatch loop.
type Registry struct {
	engine   host.Engine
	bus      host.SignalBus
	deliver  DeliverFunc
	logger   zerolog.Logger
	bindings map[host.OutputKind]*binding
}

// NewRegistry creates an empty registry.
func NewRegistry(engine host.Engine, bus host.SignalBus, deliver DeliverFunc) *Registry {
	return &Registry{
		engine:   engine,
		bus:      bus,
		deliver:  deliver,
		logger:   xglog.WithComponent("output.registry"),
		bindings: make(map[host.OutputKind]*binding),
	}
}

// Bind fetches the current output of kind from the host and connects every
// lifecycle signal for it. Any previous binding for kind is torn down first.
// Registration is all-or-nothing.
func (r *Registry) Bind(kind host.OutputKind) error {
	r.Unbind(kind)

	h, ok := r.engine.ActiveOutput(kind)
	if !ok || !h.Valid() {
		metrics.IncBinding(kind.String(), "no_output")
		return fmt.Errorf("bind %s: %w", kind, ErrNoActiveOutput)
	}

	b := &binding{handle: h}
	for _, sig := range Signals(kind) {
		id, err := r.bus.Connect(h, sig, r.callback(kind, sig))
		if err != nil {
			for i := len(b.slots) - 1; i >= 0; i-- {
				r.bus.Disconnect(h, b.slots[i])
			}
			metrics.IncBinding(kind.String(), "error")
			return fmt.Errorf("bind %s signal %q: %w: %w", kind, sig, ErrConnectFailed, err)
		}
		b.slots = append(b.slots, id)
	}
	r.bindings[kind] = b

	metrics.IncBinding(kind.String(), "bound")
	r.logger.Debug().
		Str(xglog.FieldEvent, "output.bound").
		Str(xglog.FieldOutputKind, kind.String()).
		Stringer(xglog.FieldHandle, h).
		Int("signals", len(b.slots)).
		Msg("output handle bound")
	return nil
}

// Unbind disconnects every signal of the current binding, then drops the
// handle. It is a no-op when kind is unbound.
func (r *Registry) Unbind(kind host.OutputKind) {
	b, ok := r.bindings[kind]
	if !ok {
		return
	}
	for _, id := range b.slots {
		r.bus.Disconnect(b.handle, id)
	}
	delete(r.bindings, kind)

	r.logger.Debug().
		Str(xglog.FieldEvent, "output.unbound").
		Str(xglog.FieldOutputKind, kind.String()).
		Stringer(xglog.FieldHandle, b.handle).
		Msg("output handle released")
}

// Validate reports whether candidate is the handle currently bound for kind.
func (r *Registry) Validate(kind host.OutputKind, candidate host.Handle) bool {
	b, ok := r.bindings[kind]
	return ok && b.handle == candidate
}

// Bound returns the handle bound for kind.
func (r *Registry) Bound(kind host.OutputKind) (host.Handle, bool) {
	b, ok := r.bindings[kind]
	if !ok {
		return 0, false
	}
	return b.handle, true
}

// UnbindAll releases every binding.
func (r *Registry) UnbindAll() {
	for _, kind := range host.Kinds {
		r.Unbind(kind)
	}
}

func (r *Registry) callback(kind host.OutputKind, sig host.Signal) host.Callback {
	return func(data host.Calldata) {
		r.deliver(SignalEvent{Kind: kind, Signal: sig, Data: data, Received: time.Now()})
	}
}
