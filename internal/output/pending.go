// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package output

import (
	"time"

	"github.com/ManuGH/deckbridge/internal/host"
)

// Pending is the command awaiting host confirmation for one output kind.
type Pending string

const (
	PendingNone   Pending = "none"
	AwaitingStart Pending = "awaiting_start"
	AwaitingStop  Pending = "awaiting_stop"
)

// PendingCommand records an issued host command until a signal resolves it.
type PendingCommand struct {
	Tag      Pending
	IssuedAt time.Time
}

// Command returns the host command that produced the tag.
func (p PendingCommand) Command() host.Command {
	if p.Tag == AwaitingStop {
		return host.Stop
	}
	return host.Start
}
