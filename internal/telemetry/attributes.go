// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the bridge.
const (
	OutputKindKey   = "output.kind"
	OutputHandleKey = "output.handle"
	OutputSignalKey = "output.signal"
	StateFromKey    = "output.state.from"
	StateToKey      = "output.state.to"
	StopCodeKey     = "output.stop_code"

	RPCEventKey    = "rpc.event"
	RPCResourceKey = "rpc.resource"
	EndpointIDKey  = "endpoint.id"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SignalAttributes describes a host signal delivery.
func SignalAttributes(kind, signal, handle string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(OutputKindKey, kind),
		attribute.String(OutputSignalKey, signal),
		attribute.String(OutputHandleKey, handle),
	}
}

// TransitionAttributes describes an applied state transition.
func TransitionAttributes(from, to string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StateFromKey, from),
		attribute.String(StateToKey, to),
	}
}

// RequestAttributes describes a remote request. Empty values are omitted.
func RequestAttributes(event, resource, endpointID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	attrs = append(attrs, attribute.String(RPCEventKey, event))
	if resource != "" {
		attrs = append(attrs, attribute.String(RPCResourceKey, resource))
	}
	if endpointID != "" {
		attrs = append(attrs, attribute.String(EndpointIDKey, endpointID))
	}
	return attrs
}

// ErrorAttributes marks a span as failed with a classification.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
