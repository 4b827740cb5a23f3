// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies request validation failures.
	ErrValidation = errors.New("request validation failed")
	// ErrEventMismatch is returned when a handler receives another event.
	ErrEventMismatch = errors.New("event does not match handler")
	// ErrOutputBusy is returned when the output is not in a state that accepts the command.
	ErrOutputBusy = errors.New("output busy")
	// ErrUnknownEvent is returned for events outside the protocol.
	ErrUnknownEvent = errors.New("unknown event")
)

// ValidationError reports a request field that failed validation.
type ValidationError struct {
	Field   string
	Value   string
	Pattern string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q does not match %s", e.Field, e.Value, e.Pattern)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error { return ErrValidation }
