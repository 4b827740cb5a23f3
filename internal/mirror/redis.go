// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mirror republishes fan-out notifications on a Redis channel so
// other processes can observe output state changes.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ManuGH/deckbridge/internal/broadcast"
	"github.com/ManuGH/deckbridge/internal/rpc"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "deckbridge:notifications"

// Config holds Redis connection configuration.
type Config struct {
	Addr     string // Redis server address (host:port)
	Password string
	DB       int
	Channel  string
}

// Notification is the payload published for each mirrored response.
type Notification struct {
	Event rpc.Event `json:"event"`
	Data  any       `json:"data"`
	At    time.Time `json:"at"`
}

// RedisMirror publishes notifications with PUBLISH.
type RedisMirror struct {
	client    *redis.Client
	channel   string
	logger    zerolog.Logger
	published atomic.Int64
}

var _ broadcast.Mirror = (*RedisMirror)(nil)

// NewRedisMirror connects to Redis and verifies the connection.
func NewRedisMirror(ctx context.Context, cfg Config, logger zerolog.Logger) (*RedisMirror, error) {
	client := redis.NewClient(clientOptions(cfg))

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Str("channel", channelOrDefault(cfg.Channel)).
		Msg("mirroring notifications to Redis")
	return newWithClient(client, cfg.Channel, logger), nil
}

// clientOptions lets caller deadlines cut socket reads and writes short, so
// a hung server cannot hold up a publish past its context.
func clientOptions(cfg Config) *redis.Options {
	return &redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		DialTimeout:           5 * time.Second,
		ReadTimeout:           3 * time.Second,
		WriteTimeout:          3 * time.Second,
		ContextTimeoutEnabled: true,
		PoolSize:              4,
	}
}

func newWithClient(client *redis.Client, channel string, logger zerolog.Logger) *RedisMirror {
	return &RedisMirror{client: client, channel: channelOrDefault(channel), logger: logger}
}

func channelOrDefault(ch string) string {
	if ch == "" {
		return DefaultChannel
	}
	return ch
}

// Mirror implements broadcast.Mirror.
func (m *RedisMirror) Mirror(ctx context.Context, resp rpc.Response) error {
	data, err := json.Marshal(Notification{Event: resp.Event, Data: resp.Data, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("mirror: marshal: %w", err)
	}
	if err := m.client.Publish(ctx, m.channel, data).Err(); err != nil {
		return fmt.Errorf("mirror: publish: %w", err)
	}
	m.published.Add(1)
	return nil
}

// Published returns the number of notifications published.
func (m *RedisMirror) Published() int64 {
	return m.published.Load()
}

// HealthCheck checks if Redis is available.
func (m *RedisMirror) HealthCheck(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
