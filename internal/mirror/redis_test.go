// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mirror

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/deckbridge/internal/broadcast"
	"github.com/ManuGH/deckbridge/internal/bus"
	"github.com/ManuGH/deckbridge/internal/rpc"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisMirror_PublishesNotification(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, err := NewRedisMirror(ctx, Config{Addr: mr.Addr(), Channel: "deck"}, zerolog.Nop())
	require.NoError(t, err)
	defer m.Close()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(ctx, "deck")
	defer ps.Close()
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Mirror(ctx, rpc.Label(rpc.StreamingStatusChangedSubscribe, "live")))

	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
	assert.Equal(t, rpc.StreamingStatusChangedSubscribe, n.Event)
	assert.Equal(t, "live", n.Data)
	assert.False(t, n.At.IsZero())
	assert.Equal(t, int64(1), m.Published())
	assert.NoError(t, m.HealthCheck(ctx))
}

func TestRedisMirror_DefaultChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	m := newWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", zerolog.Nop())
	defer m.Close()
	assert.Equal(t, DefaultChannel, m.channel)
}

func TestNewRedisMirror_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisMirror(ctx, Config{Addr: addr}, zerolog.Nop())
	require.Error(t, err)
}

func TestRedisMirror_PublishFailsWhenServerGone(t *testing.T) {
	mr := miniredis.RunT(t)
	m := newWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), "deck", zerolog.Nop())
	defer m.Close()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, m.Mirror(ctx, rpc.ErrorFlag(rpc.StopStreaming, false)))
	assert.Zero(t, m.Published())
}

// silentServer accepts connections and never answers.
func silentServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func TestCommitAll_HungRedisBoundedByPublishTimeout(t *testing.T) {
	addr := silentServer(t)
	m := newWithClient(redis.NewClient(clientOptions(Config{Addr: addr})), "deck", zerolog.Nop())
	defer m.Close()

	b := bus.NewMemoryBus(4)
	sub, err := b.Subscribe(context.Background(), broadcast.EndpointTopic("deck-1"))
	require.NoError(t, err)
	defer sub.Close()

	c := broadcast.NewChannel(b, broadcast.WithMirror(m), broadcast.WithPublishTimeout(50*time.Millisecond))
	c.Subscribe("deck-1", "deck.onStream", rpc.TopicStreaming)

	start := time.Now()
	delivered := c.CommitAll(context.Background(), rpc.Label(rpc.StreamingStatusChangedSubscribe, "live"))
	elapsed := time.Since(start)

	assert.Equal(t, 1, delivered)
	assert.Less(t, elapsed, time.Second, "a silent redis must not hold up fan-out")
	assert.Zero(t, m.Published())
}
