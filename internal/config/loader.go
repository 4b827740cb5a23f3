// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath means
// defaults plus environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, if any.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> strict file -> env -> derived values -> Validate.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(cfg.DataDir, "history.sqlite")
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file at path onto cfg with STRICT parsing.
// Keys absent from the file keep their current value.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnv applies DECKBRIDGE_* overrides. The current value is the default,
// so unset variables keep file or built-in values.
func (l *Loader) mergeEnv(cfg *Config) {
	cfg.ListenAddr = l.envString(EnvPrefix+"LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = l.envString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString(EnvPrefix+"LOG_SERVICE", cfg.LogService)
	cfg.DataDir = l.envString(EnvPrefix+"DATA_DIR", cfg.DataDir)

	cfg.Remote.ReadLimit = l.envInt64(EnvPrefix+"REMOTE_READ_LIMIT", cfg.Remote.ReadLimit)
	cfg.Remote.PingInterval = l.envDuration(EnvPrefix+"REMOTE_PING_INTERVAL", cfg.Remote.PingInterval)
	cfg.Remote.PongWait = l.envDuration(EnvPrefix+"REMOTE_PONG_WAIT", cfg.Remote.PongWait)
	cfg.Remote.WriteWait = l.envDuration(EnvPrefix+"REMOTE_WRITE_WAIT", cfg.Remote.WriteWait)
	cfg.Remote.SendBuffer = l.envInt(EnvPrefix+"REMOTE_SEND_BUFFER", cfg.Remote.SendBuffer)
	cfg.Remote.MaxConnections = l.envInt(EnvPrefix+"REMOTE_MAX_CONNECTIONS", cfg.Remote.MaxConnections)

	cfg.Broadcast.PublishTimeout = l.envDuration(EnvPrefix+"BROADCAST_PUBLISH_TIMEOUT", cfg.Broadcast.PublishTimeout)

	cfg.RateLimit.Requests = l.envInt(EnvPrefix+"RATELIMIT_REQUESTS", cfg.RateLimit.Requests)
	cfg.RateLimit.Window = l.envDuration(EnvPrefix+"RATELIMIT_WINDOW", cfg.RateLimit.Window)

	cfg.Host.Mode = l.envString(EnvPrefix+"HOST_MODE", cfg.Host.Mode)
	cfg.Host.StepDelay = l.envDuration(EnvPrefix+"HOST_STEP_DELAY", cfg.Host.StepDelay)
	cfg.Host.FailStopCode = l.envInt64(EnvPrefix+"HOST_FAIL_STOP_CODE", cfg.Host.FailStopCode)

	cfg.Journal.Enabled = l.envBool(EnvPrefix+"JOURNAL_ENABLED", cfg.Journal.Enabled)
	cfg.Journal.Path = l.envString(EnvPrefix+"JOURNAL_PATH", cfg.Journal.Path)
	cfg.Journal.Retain = l.envInt(EnvPrefix+"JOURNAL_RETAIN", cfg.Journal.Retain)

	cfg.Mirror.RedisAddr = l.envString(EnvPrefix+"MIRROR_REDIS_ADDR", cfg.Mirror.RedisAddr)
	cfg.Mirror.Channel = l.envString(EnvPrefix+"MIRROR_CHANNEL", cfg.Mirror.Channel)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

// UnknownEnvKeys returns DECKBRIDGE_* variables present in environ that the
// last Load did not consume, sorted.
func (l *Loader) UnknownEnvKeys(environ []string) []string {
	var out []string
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
