// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package host defines the boundary to the media-production engine: the
// output handles it hands out, the commands it accepts and the signal bus
// it publishes output lifecycle events on.
package host

import "fmt"

// Handle is an opaque reference to a host-managed output instance.
// The zero value means "no output".
type Handle uint64

// Valid reports whether h refers to an output.
func (h Handle) Valid() bool { return h != 0 }

func (h Handle) String() string {
	if h == 0 {
		return "output#none"
	}
	return fmt.Sprintf("output#%d", uint64(h))
}

// OutputKind selects one of the host outputs.
type OutputKind string

const (
	Streaming OutputKind = "streaming"
	Recording OutputKind = "recording"
)

// Kinds lists every output kind in a stable order.
var Kinds = []OutputKind{Streaming, Recording}

func (k OutputKind) String() string { return string(k) }

// Command is a fire-and-forget instruction to the host.
type Command string

const (
	Start Command = "start"
	Stop  Command = "stop"
)

// Engine is the subset of the host engine the bridge drives.
type Engine interface {
	// ActiveOutput returns the current output object for kind, if any.
	ActiveOutput(kind OutputKind) (Handle, bool)
	// IsOutputActive reports whether the output of kind is running.
	IsOutputActive(kind OutputKind) bool
	// IssueCommand asks the host to start or stop an output. The outcome
	// arrives later as signals.
	IssueCommand(kind OutputKind, cmd Command)
}

// FrontendEvent is an application-level lifecycle notification that gates
// when output handles are (re)bound.
type FrontendEvent string

const (
	FrontendLoaded             FrontendEvent = "application_loaded"
	FrontendExit               FrontendEvent = "application_exit"
	FrontendStreamingLaunching FrontendEvent = "streaming_launching"
	FrontendRecordingStarting  FrontendEvent = "recording_starting"
)

// FrontendListener receives frontend events. Hosts call it synchronously.
type FrontendListener func(ev FrontendEvent)

// Frontend publishes application lifecycle events.
type Frontend interface {
	OnFrontendEvent(fn FrontendListener)
}
