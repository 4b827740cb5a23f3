// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads deckbridge configuration.
//
// Precedence: ENV (DECKBRIDGE_*) > YAML file > defaults. The file is parsed
// strictly; unknown keys fail the load with ErrUnknownConfigField.
package config

import "time"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DECKBRIDGE_"

// Host modes.
const (
	HostModeSim = "sim"
)

// Config is the full daemon configuration.
type Config struct {
	ListenAddr string `yaml:"listenAddr"`
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`
	DataDir    string `yaml:"dataDir"`

	Remote    RemoteConfig    `yaml:"remote"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Host      HostConfig      `yaml:"host"`
	Journal   JournalConfig   `yaml:"journal"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Version is injected from the binary, never read from file or env.
	Version string `yaml:"-"`
}

// RemoteConfig tunes the WebSocket transport.
type RemoteConfig struct {
	ReadLimit      int64         `yaml:"readLimit"`
	PingInterval   time.Duration `yaml:"pingInterval"`
	PongWait       time.Duration `yaml:"pongWait"`
	WriteWait      time.Duration `yaml:"writeWait"`
	SendBuffer     int           `yaml:"sendBuffer"`
	MaxConnections int           `yaml:"maxConnections"`
}

// BroadcastConfig tunes per-endpoint delivery.
type BroadcastConfig struct {
	PublishTimeout time.Duration `yaml:"publishTimeout"`
}

// RateLimitConfig bounds /ws upgrades and /api requests per client IP.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// HostConfig selects and tunes the host engine.
type HostConfig struct {
	Mode         string        `yaml:"mode"`
	StepDelay    time.Duration `yaml:"stepDelay"`
	FailStopCode int64         `yaml:"failStopCode"`
}

// JournalConfig controls the SQLite history journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Retain  int    `yaml:"retain"`
}

// MirrorConfig controls the Redis notification mirror. Empty RedisAddr disables it.
type MirrorConfig struct {
	RedisAddr string `yaml:"redisAddr"`
	Channel   string `yaml:"channel"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr: ":8765",
		LogLevel:   "info",
		LogService: "deckbridge",
		DataDir:    "data",
		Remote: RemoteConfig{
			ReadLimit:      64 << 10,
			PingInterval:   54 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			SendBuffer:     64,
			MaxConnections: 64,
		},
		Broadcast: BroadcastConfig{PublishTimeout: 2 * time.Second},
		RateLimit: RateLimitConfig{Requests: 120, Window: time.Minute},
		Host: HostConfig{
			Mode:      HostModeSim,
			StepDelay: 250 * time.Millisecond,
		},
		Journal: JournalConfig{
			Enabled: true,
			Retain:  10000,
		},
		Mirror: MirrorConfig{Channel: "deckbridge:notifications"},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
