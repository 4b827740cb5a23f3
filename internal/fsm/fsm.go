// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm provides a small table-driven state machine.
package fsm

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when no edge exists for (state, event).
var ErrInvalidTransition = errors.New("invalid transition")

// Transition describes a single edge in the FSM.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
}

// Table is an immutable transition index. Next is a pure lookup.
type Table[S ~string, E ~string] struct {
	index map[edge[S, E]]S
}

type edge[S ~string, E ~string] struct {
	from  S
	event E
}

// NewTable indexes transitions. Duplicate (From, Event) pairs are rejected.
func NewTable[S ~string, E ~string](transitions []Transition[S, E]) (*Table[S, E], error) {
	idx := make(map[edge[S, E]]S, len(transitions))
	for _, t := range transitions {
		k := edge[S, E]{from: t.From, event: t.Event}
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		idx[k] = t.To
	}
	return &Table[S, E]{index: idx}, nil
}

// MustTable is NewTable for package-level tables.
func MustTable[S ~string, E ~string](transitions []Transition[S, E]) *Table[S, E] {
	t, err := NewTable(transitions)
	if err != nil {
		panic(err)
	}
	return t
}

// Next returns the target state for (from, event) and whether the edge exists.
func (t *Table[S, E]) Next(from S, event E) (S, bool) {
	to, ok := t.index[edge[S, E]{from: from, event: event}]
	return to, ok
}

// Machine is a small, test-friendly FSM runner.
// It is intentionally strict: unknown transitions are errors and leave the state unchanged.
type Machine[S ~string, E ~string] struct {
	mu      sync.Mutex
	initial S
	state   S
	table   *Table[S, E]
}

// New creates a machine starting in initial.
func New[S ~string, E ~string](initial S, table *Table[S, E]) *Machine[S, E] {
	return &Machine[S, E]{initial: initial, state: initial, table: table}
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies event and returns (from, to).
func (m *Machine[S, E]) Fire(event E) (S, S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	to, ok := m.table.Next(from, event)
	if !ok {
		return from, from, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, from, event)
	}
	m.state = to
	return from, to, nil
}

// Reset returns the machine to its initial state.
func (m *Machine[S, E]) Reset() {
	m.mu.Lock()
	m.state = m.initial
	m.mu.Unlock()
}
