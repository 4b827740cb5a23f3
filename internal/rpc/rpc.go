// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package rpc defines the wire messages exchanged with remote control surfaces.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/deckbridge/internal/host"
)

// Event identifies a request or notification.
type Event string

const (
	GetRecordStreamState            Event = "GET_RECORD_STREAM_STATE"
	StreamingStatusChangedSubscribe Event = "STREAMING_STATUS_CHANGED_SUBSCRIBE"
	StartStreaming                  Event = "START_STREAMING"
	StopStreaming                   Event = "STOP_STREAMING"
	RecordingStatusChangedSubscribe Event = "RECORDING_STATUS_CHANGED_SUBSCRIBE"
	StartRecording                  Event = "START_RECORDING"
	StopRecording                   Event = "STOP_RECORDING"
)

var knownEvents = map[Event]struct{}{
	GetRecordStreamState:            {},
	StreamingStatusChangedSubscribe: {},
	StartStreaming:                  {},
	StopStreaming:                   {},
	RecordingStatusChangedSubscribe: {},
	StartRecording:                  {},
	StopRecording:                   {},
}

// Known reports whether e is part of the protocol.
func (e Event) Known() bool {
	_, ok := knownEvents[e]
	return ok
}

// Topic groups events that a single subscription covers.
type Topic string

const (
	TopicNone      Topic = ""
	TopicStreaming Topic = "streaming"
	TopicRecording Topic = "recording"
)

// Topic returns the subscription topic an event is broadcast under.
func (e Event) Topic() Topic {
	switch e {
	case StreamingStatusChangedSubscribe, StartStreaming, StopStreaming:
		return TopicStreaming
	case RecordingStatusChangedSubscribe, StartRecording, StopRecording:
		return TopicRecording
	default:
		return TopicNone
	}
}

// StatusEvent returns the status-change event for kind.
func StatusEvent(kind host.OutputKind) Event {
	if kind == host.Recording {
		return RecordingStatusChangedSubscribe
	}
	return StreamingStatusChangedSubscribe
}

// StartEvent returns the start command event for kind.
func StartEvent(kind host.OutputKind) Event {
	if kind == host.Recording {
		return StartRecording
	}
	return StartStreaming
}

// StopEvent returns the stop command event for kind.
func StopEvent(kind host.OutputKind) Event {
	if kind == host.Recording {
		return StopRecording
	}
	return StopStreaming
}

// Request is an inbound remote-control request.
type Request struct {
	ID          string `json:"id,omitempty"`
	Event       Event  `json:"event"`
	ServiceName string `json:"serviceName,omitempty"`
	Method      string `json:"method,omitempty"`
	Resource    string `json:"resource,omitempty"`
}

// Response is an outbound reply or notification. Data is a bool error flag,
// a state label string or a StatePair.
type Response struct {
	ID     string `json:"id,omitempty"`
	Event  Event  `json:"event"`
	Method string `json:"method,omitempty"`
	Data   any    `json:"data"`
}

// StatePair carries the streaming and recording labels.
type StatePair struct {
	Streaming string `json:"streaming"`
	Recording string `json:"recording"`
}

// ErrorFlag builds a response whose data is the "an error occurred" flag.
func ErrorFlag(event Event, failed bool) Response {
	return Response{Event: event, Data: failed}
}

// Label builds a response carrying a state label.
func Label(event Event, label string) Response {
	return Response{Event: event, Data: label}
}

// ReplyTo copies the correlation fields of req onto r.
func (r Response) ReplyTo(req Request, method string) Response {
	r.ID = req.ID
	r.Method = method
	return r
}

// ErrMalformed is returned for frames that are not a valid request.
var ErrMalformed = errors.New("malformed request")

// DecodeRequest parses a request frame.
func DecodeRequest(frame []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if strings.TrimSpace(string(req.Event)) == "" {
		return Request{}, fmt.Errorf("%w: missing event", ErrMalformed)
	}
	return req, nil
}

// Encode serializes a response frame.
func Encode(resp Response) ([]byte, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", resp.Event, err)
	}
	return b, nil
}
