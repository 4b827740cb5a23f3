// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/deckbridge/internal/bus"
	"github.com/ManuGH/deckbridge/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMirror struct {
	got []rpc.Response
	err error
}

func (m *recordingMirror) Mirror(_ context.Context, resp rpc.Response) error {
	m.got = append(m.got, resp)
	return m.err
}

func listen(t *testing.T, b bus.Bus, endpointID string) bus.Subscriber {
	t.Helper()
	sub, err := b.Subscribe(context.Background(), EndpointTopic(endpointID))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func next(t *testing.T, sub bus.Subscriber) rpc.Response {
	t.Helper()
	select {
	case msg := <-sub.C():
		resp, ok := msg.(rpc.Response)
		require.True(t, ok, "unexpected message type %T", msg)
		return resp
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return rpc.Response{}
	}
}

func assertEmpty(t *testing.T, sub bus.Subscriber) {
	t.Helper()
	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected message %#v", msg)
	default:
	}
}

func TestCommitTo_SingleTarget(t *testing.T) {
	b := bus.NewMemoryBus(8)
	c := NewChannel(b)
	a := listen(t, b, "a")
	other := listen(t, b, "b")

	require.NoError(t, c.CommitTo(context.Background(), rpc.ErrorFlag(rpc.StartStreaming, true), "a"))

	assert.Equal(t, rpc.ErrorFlag(rpc.StartStreaming, true), next(t, a))
	assertEmpty(t, other)
}

func TestCommitAll_OnlySubscribersOfTopic(t *testing.T) {
	b := bus.NewMemoryBus(8)
	mirror := &recordingMirror{}
	c := NewChannel(b, WithMirror(mirror))
	stream := listen(t, b, "stream")
	record := listen(t, b, "record")
	idle := listen(t, b, "idle")

	assert.True(t, c.Subscribe("stream", "deck.onStream", rpc.TopicStreaming))
	assert.True(t, c.Subscribe("record", "deck.onRecord", rpc.TopicRecording))

	n := c.CommitAll(context.Background(), rpc.Label(rpc.StreamingStatusChangedSubscribe, "live"))
	assert.Equal(t, 1, n)

	got := next(t, stream)
	assert.Equal(t, rpc.StreamingStatusChangedSubscribe, got.Event)
	assert.Equal(t, "live", got.Data)
	assert.Equal(t, "deck.onStream", got.Method)
	assertEmpty(t, record)
	assertEmpty(t, idle)

	// Action outcomes travel on the same topic as the status.
	c.CommitAll(context.Background(), rpc.ErrorFlag(rpc.StopStreaming, false))
	assert.Equal(t, rpc.StopStreaming, next(t, stream).Event)

	require.Len(t, mirror.got, 2)
}

func TestSubscribe_ReplacesKeyForSameEndpoint(t *testing.T) {
	c := NewChannel(bus.NewMemoryBus(1))

	assert.True(t, c.Subscribe("a", "deck.one", rpc.TopicStreaming))
	assert.False(t, c.Subscribe("a", "deck.two", rpc.TopicStreaming))
	assert.True(t, c.Subscribe("b", "deck.one", rpc.TopicStreaming))

	subs := c.Subscriptions()
	require.Len(t, subs, 2)
	assert.Equal(t, "a", subs[0].EndpointID)
	assert.Equal(t, "deck.two", subs[0].Key)
}

func TestCommitAll_PrunesGoneEndpoints(t *testing.T) {
	b := bus.NewMemoryBus(4)
	c := NewChannel(b)
	live := listen(t, b, "live")
	gone, err := b.Subscribe(context.Background(), EndpointTopic("gone"))
	require.NoError(t, err)

	c.Subscribe("live", "deck.k", rpc.TopicStreaming)
	c.Subscribe("gone", "deck.k", rpc.TopicStreaming)
	require.NoError(t, gone.Close())

	n := c.CommitAll(context.Background(), rpc.Label(rpc.StreamingStatusChangedSubscribe, "starting"))
	assert.Equal(t, 1, n)
	next(t, live)
	require.Len(t, c.Subscriptions(), 1)
}

func TestCommitAll_SlowEndpointDoesNotBlockOthers(t *testing.T) {
	b := bus.NewMemoryBus(1)
	c := NewChannel(b, WithPublishTimeout(10*time.Millisecond))
	slow := listen(t, b, "a-slow")
	fast := listen(t, b, "b-fast")
	c.Subscribe("a-slow", "k", rpc.TopicStreaming)
	c.Subscribe("b-fast", "k", rpc.TopicStreaming)

	// Fill the slow endpoint's buffer.
	require.NoError(t, c.CommitTo(context.Background(), rpc.Label(rpc.StreamingStatusChangedSubscribe, "x"), "a-slow"))

	n := c.CommitAll(context.Background(), rpc.Label(rpc.StreamingStatusChangedSubscribe, "live"))
	assert.Equal(t, 1, n)
	assert.Equal(t, "live", next(t, fast).Data)
	assert.Equal(t, "x", next(t, slow).Data)
}

func TestCommitAll_MirrorFailureIsNotFatal(t *testing.T) {
	b := bus.NewMemoryBus(1)
	mirror := &recordingMirror{err: errors.New("redis down")}
	c := NewChannel(b, WithMirror(mirror))
	sub := listen(t, b, "a")
	c.Subscribe("a", "k", rpc.TopicRecording)

	assert.Equal(t, 1, c.CommitAll(context.Background(), rpc.Label(rpc.RecordingStatusChangedSubscribe, "recording")))
	next(t, sub)
}

type stallingMirror struct{ hadDeadline bool }

func (m *stallingMirror) Mirror(ctx context.Context, _ rpc.Response) error {
	_, m.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestCommitAll_MirrorBoundedByPublishTimeout(t *testing.T) {
	b := bus.NewMemoryBus(8)
	mirror := &stallingMirror{}
	c := NewChannel(b, WithMirror(mirror), WithPublishTimeout(20*time.Millisecond))
	sub := listen(t, b, "deck")
	c.Subscribe("deck", "deck.onStream", rpc.TopicStreaming)

	start := time.Now()
	assert.Equal(t, 1, c.CommitAll(context.Background(), rpc.Label(rpc.StreamingStatusChangedSubscribe, "live")))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, mirror.hadDeadline)
	assert.Equal(t, "live", next(t, sub).Data)
}
