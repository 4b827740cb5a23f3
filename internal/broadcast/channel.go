// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package broadcast delivers responses to remote endpoints: single-target
// replies and fan-out to subscribers.
package broadcast

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ManuGH/deckbridge/internal/bus"
	xglog "github.com/ManuGH/deckbridge/internal/log"
	"github.com/ManuGH/deckbridge/internal/metrics"
	"github.com/ManuGH/deckbridge/internal/rpc"
	"github.com/rs/zerolog"
)

// DefaultPublishTimeout bounds how long one delivery may wait on a slow endpoint.
const DefaultPublishTimeout = 250 * time.Millisecond

// EndpointTopic is the bus topic an endpoint's writer listens on.
func EndpointTopic(endpointID string) string {
	return "endpoint/" + endpointID
}

// Subscription associates an endpoint with a notification topic.
type Subscription struct {
	EndpointID string    `json:"endpointId"`
	Key        string    `json:"key"`
	Topic      rpc.Topic `json:"topic"`
	Created    time.Time `json:"created"`
}

// Mirror receives a copy of every fan-out notification. Each call is bounded
// by the publish timeout.
type Mirror interface {
	Mirror(ctx context.Context, resp rpc.Response) error
}

// Channel stores subscriptions by endpoint ID only; it never owns the
// connections behind them. Endpoints that no longer listen on the bus are
// pruned at delivery time. Not safe for concurrent use; callers serialize
// through the dispatch loop.
type Channel struct {
	bus     bus.Bus
	mirror  Mirror
	timeout atomic.Int64
	logger  zerolog.Logger
	subs    map[rpc.Topic]map[string]Subscription
}

// Option configures a Channel.
type Option func(*Channel)

// WithMirror copies fan-out notifications to m.
func WithMirror(m Mirror) Option {
	return func(c *Channel) { c.mirror = m }
}

// WithPublishTimeout sets the per-delivery timeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *Channel) { c.SetPublishTimeout(d) }
}

// NewChannel creates a channel delivering over b.
func NewChannel(b bus.Bus, opts ...Option) *Channel {
	c := &Channel{
		bus:    b,
		logger: xglog.WithComponent("broadcast"),
		subs:   make(map[rpc.Topic]map[string]Subscription),
	}
	c.timeout.Store(int64(DefaultPublishTimeout))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetPublishTimeout changes the per-delivery timeout. Safe from any goroutine.
func (c *Channel) SetPublishTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultPublishTimeout
	}
	c.timeout.Store(int64(d))
}

// Subscribe records that endpointID wants notifications for topic. A second
// subscribe from the same endpoint to the same topic replaces the key. It
// reports whether a new subscription was created.
func (c *Channel) Subscribe(endpointID, key string, topic rpc.Topic) bool {
	set, ok := c.subs[topic]
	if !ok {
		set = make(map[string]Subscription)
		c.subs[topic] = set
	}
	_, existed := set[endpointID]
	set[endpointID] = Subscription{EndpointID: endpointID, Key: key, Topic: topic, Created: time.Now()}
	metrics.SetSubscriptions(string(topic), len(set))
	return !existed
}

// Subscriptions returns a snapshot sorted by topic then endpoint.
func (c *Channel) Subscriptions() []Subscription {
	var out []Subscription
	for _, set := range c.subs {
		for _, s := range set {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].EndpointID < out[j].EndpointID
	})
	return out
}

// CommitTo delivers resp to a single endpoint.
func (c *Channel) CommitTo(ctx context.Context, resp rpc.Response, endpointID string) error {
	metrics.IncBroadcast(string(resp.Event), "direct")
	return c.publish(ctx, endpointID, resp)
}

// CommitAll delivers resp to every endpoint subscribed to the topic of its
// event and returns the number of endpoints reached.
func (c *Channel) CommitAll(ctx context.Context, resp rpc.Response) int {
	metrics.IncBroadcast(string(resp.Event), "fanout")

	topic := resp.Event.Topic()
	set := c.subs[topic]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	delivered := 0
	for _, id := range ids {
		if !c.bus.HasSubscribers(EndpointTopic(id)) {
			delete(set, id)
			c.logger.Debug().
				Str(xglog.FieldEvent, "subscription.pruned").
				Str(xglog.FieldEndpointID, id).
				Str(xglog.FieldTopic, string(topic)).
				Msg("endpoint gone, subscription dropped")
			continue
		}
		r := resp
		r.Method = set[id].Key
		if err := c.publish(ctx, id, r); err != nil {
			continue
		}
		delivered++
	}
	if set != nil {
		metrics.SetSubscriptions(string(topic), len(set))
	}

	if c.mirror != nil {
		mctx, cancel := context.WithTimeout(ctx, time.Duration(c.timeout.Load()))
		err := c.mirror.Mirror(mctx, resp)
		cancel()
		if err != nil {
			metrics.MirrorErrorsTotal.Inc()
			c.logger.Warn().Err(err).Str(xglog.FieldRPCEvent, string(resp.Event)).Msg("mirror publish failed")
		}
	}
	return delivered
}

func (c *Channel) publish(ctx context.Context, endpointID string, resp rpc.Response) error {
	pctx, cancel := context.WithTimeout(ctx, time.Duration(c.timeout.Load()))
	defer cancel()
	if err := c.bus.Publish(pctx, EndpointTopic(endpointID), resp); err != nil {
		c.logger.Warn().
			Err(err).
			Str(xglog.FieldEndpointID, endpointID).
			Str(xglog.FieldRPCEvent, string(resp.Event)).
			Msg("delivery to endpoint failed")
		return fmt.Errorf("deliver %s to %s: %w", resp.Event, endpointID, err)
	}
	return nil
}
