// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/deckbridge/internal/validate"
)

// Validate checks cfg and returns a validate.ValidationError listing every
// invalid field. DataDir is created when missing.
func Validate(cfg Config) error {
	v := validate.New()

	v.ListenAddr("listenAddr", cfg.ListenAddr)
	v.Level("logLevel", cfg.LogLevel)
	v.NotEmpty("logService", cfg.LogService)
	v.Directory("dataDir", cfg.DataDir, false)

	if cfg.Remote.ReadLimit < 512 {
		v.AddError("remote.readLimit", "must be at least 512 bytes", cfg.Remote.ReadLimit)
	}
	v.PositiveDuration("remote.pongWait", cfg.Remote.PongWait)
	v.PositiveDuration("remote.writeWait", cfg.Remote.WriteWait)
	v.PositiveDuration("remote.pingInterval", cfg.Remote.PingInterval)
	if cfg.Remote.PingInterval > 0 && cfg.Remote.PongWait > 0 {
		v.Shorter("remote.pingInterval", cfg.Remote.PingInterval, "remote.pongWait", cfg.Remote.PongWait)
	}
	v.Positive("remote.sendBuffer", cfg.Remote.SendBuffer)
	v.Range("remote.maxConnections", cfg.Remote.MaxConnections, 1, 4096)

	v.PositiveDuration("broadcast.publishTimeout", cfg.Broadcast.PublishTimeout)

	v.NonNegative("rateLimit.requests", cfg.RateLimit.Requests)
	if cfg.RateLimit.Requests > 0 {
		v.PositiveDuration("rateLimit.window", cfg.RateLimit.Window)
	}

	v.OneOf("host.mode", cfg.Host.Mode, []string{HostModeSim})
	if cfg.Host.StepDelay < 0 {
		v.AddError("host.stepDelay", "cannot be negative", cfg.Host.StepDelay)
	}

	if cfg.Journal.Enabled {
		v.NotEmpty("journal.path", cfg.Journal.Path)
		v.Positive("journal.retain", cfg.Journal.Retain)
	}

	if cfg.Mirror.RedisAddr != "" {
		v.NotEmpty("mirror.channel", cfg.Mirror.Channel)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http", "noop"})
		if cfg.Telemetry.Exporter != "noop" {
			v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		}
		v.Ratio("telemetry.samplingRate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}
