// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newHolder(t *testing.T, body string) (*ConfigHolder, string) {
	t.Helper()
	path := writeConfig(t, body)
	l := NewLoader(path, "")
	cfg, err := l.Load()
	require.NoError(t, err)
	return NewConfigHolder(cfg, l), path
}

func TestReload_AppliesAndNotifies(t *testing.T) {
	dataDir := t.TempDir()
	h, path := newHolder(t, "dataDir: "+dataDir+"\nlogLevel: info\n")
	ch := make(chan Config, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("dataDir: "+dataDir+"\nlogLevel: debug\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, "debug", h.Get().LogLevel)
	select {
	case got := <-ch:
		assert.Equal(t, "debug", got.LogLevel)
	default:
		t.Fatal("listener not notified")
	}
}

func TestReload_InvalidKeepsCurrent(t *testing.T) {
	dataDir := t.TempDir()
	h, path := newHolder(t, "dataDir: "+dataDir+"\nlogLevel: warn\n")

	require.NoError(t, os.WriteFile(path, []byte("dataDir: "+dataDir+"\nlogLevel: loud\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "warn", h.Get().LogLevel)
}

func TestReload_FullListenerIsSkipped(t *testing.T) {
	dataDir := t.TempDir()
	h, _ := newHolder(t, "dataDir: "+dataDir+"\n")
	ch := make(chan Config)
	h.RegisterListener(ch)
	require.NoError(t, h.Reload(context.Background()))
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dataDir := t.TempDir()
	h, path := newHolder(t, "dataDir: "+dataDir+"\nlogLevel: info\n")
	h.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("dataDir: "+dataDir+"\nlogLevel: error\n"), 0o600))
	require.Eventually(t, func() bool {
		return h.Get().LogLevel == "error"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_DisabledWithoutFile(t *testing.T) {
	t.Setenv("DECKBRIDGE_DATA_DIR", t.TempDir())
	l := NewLoader("", "")
	cfg, err := l.Load()
	require.NoError(t, err)
	h := NewConfigHolder(cfg, l)
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
