// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID  = "request_id"
	FieldEndpointID = "endpoint_id"
	FieldServiceRef = "service_ref"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Output fields
	FieldOutputKind = "output_kind"
	FieldHandle     = "handle"
	FieldSignal     = "signal"
	FieldCode       = "code"
	FieldCommand    = "command"
	FieldPending    = "pending"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Remote protocol fields
	FieldRPCEvent = "rpc_event"
	FieldResource = "resource"
	FieldTopic    = "topic"
)
