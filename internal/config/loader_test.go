// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/deckbridge/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndDerivedJournalPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DECKBRIDGE_DATA_DIR", dir)

	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.ListenAddr, cfg.ListenAddr)
	assert.Equal(t, def.Remote, cfg.Remote)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "history.sqlite"), cfg.Journal.Path)
	assert.Equal(t, "v1.2.3", cfg.Version)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
listenAddr: "127.0.0.1:9000"
logLevel: debug
dataDir: `+dataDir+`
remote:
  pingInterval: 20s
  pongWait: 30s
broadcast:
  publishTimeout: 750ms
host:
  stepDelay: 10ms
  failStopCode: -4
`)
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 20*time.Second, cfg.Remote.PingInterval)
	assert.Equal(t, 30*time.Second, cfg.Remote.PongWait)
	assert.Equal(t, Default().Remote.WriteWait, cfg.Remote.WriteWait, "keys absent from the file keep defaults")
	assert.Equal(t, 750*time.Millisecond, cfg.Broadcast.PublishTimeout)
	assert.Equal(t, int64(-4), cfg.Host.FailStopCode)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, "logLevel: debug\ndataDir: "+dataDir+"\n")
	t.Setenv("DECKBRIDGE_LOG_LEVEL", "warn")
	t.Setenv("DECKBRIDGE_REMOTE_READ_LIMIT", "4096")
	t.Setenv("DECKBRIDGE_JOURNAL_ENABLED", "no")
	t.Setenv("DECKBRIDGE_TELEMETRY_SAMPLING_RATE", "0.25")
	t.Setenv("DECKBRIDGE_HOST_STEP_DELAY", "not-a-duration")

	l := NewLoader(path, "")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, int64(4096), cfg.Remote.ReadLimit)
	assert.False(t, cfg.Journal.Enabled)
	assert.InDelta(t, 0.25, cfg.Telemetry.SamplingRate, 1e-9)
	assert.Equal(t, Default().Host.StepDelay, cfg.Host.StepDelay, "invalid env values fall back")
	assert.Contains(t, l.ConsumedEnvKeys, "DECKBRIDGE_LOG_LEVEL")
}

func TestLoad_UnknownFieldIsRejected(t *testing.T) {
	path := writeConfig(t, "listenAddr: \":1\"\nstreamDeckColour: red\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField))
}

func TestLoad_RejectsTrailingDocuments(t *testing.T) {
	path := writeConfig(t, "logLevel: info\n---\nlogLevel: debug\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "").Load()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	t.Setenv("DECKBRIDGE_DATA_DIR", t.TempDir())
	path := writeConfig(t, "")
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, Default().LogLevel, cfg.LogLevel)
}

func TestLoad_ValidationErrors(t *testing.T) {
	path := writeConfig(t, `
dataDir: `+t.TempDir()+`
logLevel: chatty
remote:
  pingInterval: 2m
  pongWait: 1m
host:
  mode: obs
`)
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)

	var verr validate.ValidationError
	require.True(t, errors.As(err, &verr))
	fields := make([]string, 0, len(verr.Errors()))
	for _, e := range verr.Errors() {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"logLevel", "remote.pingInterval", "host.mode"}, fields)
}

func TestUnknownEnvKeys(t *testing.T) {
	t.Setenv("DECKBRIDGE_DATA_DIR", t.TempDir())
	l := NewLoader("", "")
	_, err := l.Load()
	require.NoError(t, err)

	got := l.UnknownEnvKeys([]string{
		"DECKBRIDGE_LOG_LEVEL=info",
		"DECKBRIDGE_LISTEN_PORT=1",
		"HOME=/root",
	})
	assert.Equal(t, []string{"DECKBRIDGE_LISTEN_PORT"}, got)
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "deckbridge.yaml")
	require.NoError(t, WriteDefault(path, false))
	require.Error(t, WriteDefault(path, false), "existing file is not overwritten")
	require.NoError(t, WriteDefault(path, true))

	t.Setenv("DECKBRIDGE_DATA_DIR", t.TempDir())
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Remote, cfg.Remote)
	assert.Equal(t, Default().Telemetry, cfg.Telemetry)
}

func TestRestartRequired(t *testing.T) {
	a := Default()
	b := a
	b.LogLevel = "debug"
	b.Broadcast.PublishTimeout = time.Second
	assert.Empty(t, RestartRequired(a, b))

	b.ListenAddr = ":1"
	b.Remote.SendBuffer = 1
	assert.Equal(t, []string{"listenAddr", "remote"}, RestartRequired(a, b))
}
