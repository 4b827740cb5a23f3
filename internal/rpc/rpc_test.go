// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rpc

import (
	"encoding/json"
	"testing"

	"github.com/ManuGH/deckbridge/internal/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"id":"7","event":"START_STREAMING","serviceName":"deck","method":"onStart","resource":"startStreaming"}`))
	require.NoError(t, err)
	assert.Equal(t, Request{ID: "7", Event: StartStreaming, ServiceName: "deck", Method: "onStart", Resource: "startStreaming"}, req)
}

func TestDecodeRequest_Malformed(t *testing.T) {
	for _, frame := range []string{`not json`, `{}`, `{"event":"  "}`} {
		_, err := DecodeRequest([]byte(frame))
		require.ErrorIs(t, err, ErrMalformed, frame)
	}
}

func TestEncode_DataShapes(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{"error flag", ErrorFlag(StartStreaming, true), `{"event":"START_STREAMING","data":true}`},
		{"label", Label(StreamingStatusChangedSubscribe, "live"), `{"event":"STREAMING_STATUS_CHANGED_SUBSCRIBE","data":"live"}`},
		{"pair", Response{Event: GetRecordStreamState, Data: StatePair{Streaming: "offline", Recording: "offline"}},
			`{"event":"GET_RECORD_STREAM_STATE","data":{"streaming":"offline","recording":"offline"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.resp)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestReplyTo(t *testing.T) {
	resp := ErrorFlag(StopStreaming, true).ReplyTo(Request{ID: "abc", Event: StopStreaming}, "stopStreaming")
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","event":"STOP_STREAMING","method":"stopStreaming","data":true}`, string(b))
}

func TestEventTopics(t *testing.T) {
	assert.Equal(t, TopicStreaming, StartStreaming.Topic())
	assert.Equal(t, TopicStreaming, StopStreaming.Topic())
	assert.Equal(t, TopicStreaming, StreamingStatusChangedSubscribe.Topic())
	assert.Equal(t, TopicRecording, StopRecording.Topic())
	assert.Equal(t, TopicNone, GetRecordStreamState.Topic())

	assert.Equal(t, StartRecording, StartEvent(host.Recording))
	assert.Equal(t, StopStreaming, StopEvent(host.Streaming))
	assert.Equal(t, RecordingStatusChangedSubscribe, StatusEvent(host.Recording))
	assert.True(t, GetRecordStreamState.Known())
	assert.False(t, Event("NOPE").Known())
}
