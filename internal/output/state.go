// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package output

import (
	"fmt"

	"github.com/ManuGH/deckbridge/internal/fsm"
	"github.com/ManuGH/deckbridge/internal/host"
)

// State is the lifecycle state of one output. Its value is the label sent
// to remote endpoints.
type State string

const (
	StateOffline      State = "offline"
	StateStarting     State = "starting"
	StateLive         State = "live"
	StateEnding       State = "ending"
	StateReconnecting State = "reconnecting"
	StateRecording    State = "recording"
	StateStopping     State = "stopping"
)

// Label returns the human-readable state label.
func (s State) Label() string { return string(s) }

type edge = fsm.Transition[State, host.Signal]

var streamingTable = fsm.MustTable([]edge{
	{From: StateOffline, Event: host.SignalStarting, To: StateStarting},
	{From: StateStarting, Event: host.SignalStart, To: StateLive},
	{From: StateLive, Event: host.SignalStopping, To: StateEnding},
	{From: StateEnding, Event: host.SignalStop, To: StateOffline},
	{From: StateLive, Event: host.SignalReconnect, To: StateReconnecting},
	{From: StateReconnecting, Event: host.SignalReconnect, To: StateReconnecting},
	{From: StateReconnecting, Event: host.SignalReconnectSuccess, To: StateLive},

	// Failure paths: the host stops an output without "stopping" when it
	// fails to connect, drops, or gives up reconnecting.
	{From: StateStarting, Event: host.SignalStop, To: StateOffline},
	{From: StateLive, Event: host.SignalStop, To: StateOffline},
	{From: StateReconnecting, Event: host.SignalStop, To: StateOffline},
	{From: StateStarting, Event: host.SignalStopping, To: StateEnding},
	{From: StateReconnecting, Event: host.SignalStopping, To: StateEnding},
})

var recordingTable = fsm.MustTable([]edge{
	{From: StateOffline, Event: host.SignalStarting, To: StateStarting},
	{From: StateStarting, Event: host.SignalStart, To: StateRecording},
	{From: StateRecording, Event: host.SignalStopping, To: StateStopping},
	{From: StateStopping, Event: host.SignalStop, To: StateOffline},

	{From: StateStarting, Event: host.SignalStop, To: StateOffline},
	{From: StateRecording, Event: host.SignalStop, To: StateOffline},
	{From: StateStarting, Event: host.SignalStopping, To: StateStopping},
})

func tableFor(kind host.OutputKind) *fsm.Table[State, host.Signal] {
	if kind == host.Recording {
		return recordingTable
	}
	return streamingTable
}

// Next is the pure transition function for kind.
func Next(kind host.OutputKind, from State, signal host.Signal) (State, bool) {
	return tableFor(kind).Next(from, signal)
}

// Signals returns the signal names bound for kind, in registration order.
func Signals(kind host.OutputKind) []host.Signal {
	if kind == host.Recording {
		return []host.Signal{host.SignalStarting, host.SignalStart, host.SignalStopping, host.SignalStop}
	}
	return []host.Signal{
		host.SignalStarting, host.SignalStart, host.SignalStopping, host.SignalStop,
		host.SignalReconnect, host.SignalReconnectSuccess,
	}
}

// Machine tracks the state of one output kind.
type Machine struct {
	kind host.OutputKind
	m    *fsm.Machine[State, host.Signal]
}

// NewMachine returns a machine for kind in StateOffline.
func NewMachine(kind host.OutputKind) *Machine {
	return &Machine{kind: kind, m: fsm.New(StateOffline, tableFor(kind))}
}

// State returns the current state.
func (m *Machine) State() State { return m.m.State() }

// Apply advances the machine. Unknown (state, signal) pairs return
// fsm.ErrInvalidTransition and leave the state untouched.
func (m *Machine) Apply(signal host.Signal) (from, to State, err error) {
	from, to, err = m.m.Fire(signal)
	if err != nil {
		return from, to, fmt.Errorf("%s: %w", m.kind, err)
	}
	return from, to, nil
}
