// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package output

import (
	"time"

	"github.com/ManuGH/deckbridge/internal/host"
)

// Tracker holds the state machine and the pending command of every output
// kind. Not safe for concurrent use; callers serialize through the dispatch
// loop.
type Tracker struct {
	machines map[host.OutputKind]*Machine
	pending  map[host.OutputKind]PendingCommand
}

// NewTracker returns a tracker with every kind offline and nothing pending.
func NewTracker() *Tracker {
	t := &Tracker{
		machines: make(map[host.OutputKind]*Machine, len(host.Kinds)),
		pending:  make(map[host.OutputKind]PendingCommand, len(host.Kinds)),
	}
	for _, k := range host.Kinds {
		t.machines[k] = NewMachine(k)
	}
	return t
}

// Machine returns the machine for kind.
func (t *Tracker) Machine(kind host.OutputKind) *Machine {
	return t.machines[kind]
}

// State returns the current state of kind.
func (t *Tracker) State(kind host.OutputKind) State {
	return t.machines[kind].State()
}

// Pending returns the pending command for kind; the tag is PendingNone when
// nothing awaits confirmation.
func (t *Tracker) Pending(kind host.OutputKind) PendingCommand {
	p, ok := t.pending[kind]
	if !ok {
		return PendingCommand{Tag: PendingNone}
	}
	return p
}

// SetPending marks a command for kind as issued at the given time.
func (t *Tracker) SetPending(kind host.OutputKind, tag Pending, at time.Time) {
	if tag == PendingNone {
		delete(t.pending, kind)
		return
	}
	t.pending[kind] = PendingCommand{Tag: tag, IssuedAt: at}
}

// Resolve clears the pending command of kind if it carries tag.
func (t *Tracker) Resolve(kind host.OutputKind, tag Pending) (PendingCommand, bool) {
	p, ok := t.pending[kind]
	if !ok || p.Tag != tag {
		return PendingCommand{}, false
	}
	delete(t.pending, kind)
	return p, true
}

// Clear drops any pending command of kind and returns it.
func (t *Tracker) Clear(kind host.OutputKind) (PendingCommand, bool) {
	p, ok := t.pending[kind]
	delete(t.pending, kind)
	return p, ok
}
