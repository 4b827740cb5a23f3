// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package host

import "errors"

// Signal names an output lifecycle signal.
type Signal string

const (
	SignalStarting         Signal = "starting"
	SignalStart            Signal = "start"
	SignalStopping         Signal = "stopping"
	SignalStop             Signal = "stop"
	SignalReconnect        Signal = "reconnect"
	SignalReconnectSuccess Signal = "reconnect_success"
)

// Calldata is the payload delivered with a signal.
type Calldata struct {
	// Output is the handle of the output that emitted the signal.
	Output Handle
	// Code is the result code, present on "stop" only.
	Code *int64
}

// CodeOr returns the payload code or def when absent.
func (c Calldata) CodeOr(def int64) int64 {
	if c.Code == nil {
		return def
	}
	return *c.Code
}

// WithCode returns a copy of c carrying code.
func (c Calldata) WithCode(code int64) Calldata {
	c.Code = &code
	return c
}

// Callback is invoked by the signal bus. It may run on any goroutine.
type Callback func(data Calldata)

// SlotID identifies one connected callback.
type SlotID uint64

// ErrNoSignalHandler is returned when the output has no signal handler (already destroyed).
var ErrNoSignalHandler = errors.New("output has no signal handler")

// SignalBus connects callbacks to the signals of a single output.
type SignalBus interface {
	Connect(h Handle, signal Signal, cb Callback) (SlotID, error)
	// Disconnect removes a slot. Unknown slots are ignored.
	Disconnect(h Handle, id SlotID)
}
