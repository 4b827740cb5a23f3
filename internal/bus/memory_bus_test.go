// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/deckbridge/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestMemoryBusPublishContextTimeoutIncrementsDropMetrics(t *testing.T) {
	b := NewMemoryBus(4)
	sub, err := b.Subscribe(context.Background(), "endpoint/slow")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	// Fill subscriber channel to capacity so next publish blocks.
	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "endpoint/slow", "msg"))
	}

	initialLegacy := getCounterValue(t, metrics.BusDropsTotal.WithLabelValues("endpoint"))
	initialReasoned := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("timeout"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "endpoint/slow", "blocked")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	finalLegacy := getCounterValue(t, metrics.BusDropsTotal.WithLabelValues("endpoint"))
	finalReasoned := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("timeout"))
	require.Greater(t, finalLegacy, initialLegacy, "expected bus drop counter to increase")
	require.Greater(t, finalReasoned, initialReasoned, "expected reasoned bus drop counter to increase")
}

func TestMemoryBusPublishRejectsNilContext(t *testing.T) {
	b := NewMemoryBus(0)
	//nolint:staticcheck // nil context is rejected explicitly
	err := b.Publish(nil, "topic", "msg")
	require.Error(t, err)
	require.Contains(t, err.Error(), "context is nil")
}

func TestMemoryBusPreservesOrderPerSubscriber(t *testing.T) {
	b := NewMemoryBus(16)
	sub, err := b.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(context.Background(), "t", i))
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, i, <-sub.C())
	}
}

func TestMemoryBusCloseUnsubscribes(t *testing.T) {
	b := NewMemoryBus(1)
	sub, err := b.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	assert.True(t, b.HasSubscribers("t"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "double close must be safe")
	assert.False(t, b.HasSubscribers("t"))

	_, open := <-sub.C()
	assert.False(t, open)
	require.NoError(t, b.Publish(context.Background(), "t", "after-close"))
}

func TestMemoryBusCloseUnblocksPublisher(t *testing.T) {
	b := NewMemoryBus(1)
	sub, err := b.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), "t", "fill"))

	errCh := make(chan error, 1)
	go func() { errCh <- b.Publish(context.Background(), "t", "blocked") }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, sub.Close())

	select {
	case err := <-errCh:
		require.NoError(t, err, "closing subscriber counts as delivered-to-nobody")
	case <-time.After(time.Second):
		t.Fatal("publisher stayed blocked after subscriber close")
	}
}
