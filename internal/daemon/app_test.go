// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/deckbridge/internal/config"
	"github.com/ManuGH/deckbridge/internal/control"
	"github.com/ManuGH/deckbridge/internal/rpc"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, path string, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func testConfigYAML(addr, dataDir, level string) string {
	return "listenAddr: \"" + addr + "\"\n" +
		"logLevel: " + level + "\n" +
		"dataDir: " + dataDir + "\n" +
		"host:\n  stepDelay: 1ms\n"
}

func startApp(t *testing.T) (addr string, path string, holder *config.ConfigHolder) {
	t.Helper()
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prevLevel) })

	addr = reserveListenAddr(t)
	dir := t.TempDir()
	path = filepath.Join(dir, "deckbridge.yaml")
	writeYAML(t, path, testConfigYAML(addr, filepath.Join(dir, "data"), "info"))

	loader := config.NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)
	holder = config.NewConfigHolder(cfg, loader)

	ctx, cancel := context.WithCancel(context.Background())
	app, err := Build(ctx, holder)
	require.NoError(t, err)
	app.reloadSignal = nil

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	require.NoError(t, waitForListen(addr, 3*time.Second))

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("app did not stop")
		}
	})
	return addr, path, holder
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestApp_ServesRemoteControlAndIntrospection(t *testing.T) {
	addr, _, _ := startApp(t)

	require.Eventually(t, func() bool {
		return getJSON(t, "http://"+addr+"/readyz", nil) == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	read := func() rpc.Response {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var r rpc.Response
		require.NoError(t, conn.ReadJSON(&r))
		return r
	}

	require.NoError(t, conn.WriteJSON(rpc.Request{
		Event: rpc.RecordingStatusChangedSubscribe, ServiceName: "deck", Method: "onRecording", Resource: "rec",
	}))
	assert.Equal(t, "deck.onRecording", read().Data)

	require.NoError(t, conn.WriteJSON(rpc.Request{Event: rpc.StartRecording, Resource: "startRecording"}))
	assert.Equal(t, "starting", read().Data)
	assert.Equal(t, "recording", read().Data)
	started := read()
	assert.Equal(t, rpc.StartRecording, started.Event)
	assert.Equal(t, false, started.Data)

	var snap control.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, "http://"+addr+"/api/v1/outputs", &snap))
	require.Len(t, snap.Outputs, 2)
	assert.Equal(t, "recording", snap.Outputs[1].State)

	var hist struct {
		Entries []json.RawMessage `json:"entries"`
	}
	require.Eventually(t, func() bool {
		return getJSON(t, "http://"+addr+"/api/v1/history", &hist) == http.StatusOK && len(hist.Entries) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApp_ReloadAppliesLogLevel(t *testing.T) {
	addr, path, holder := startApp(t)

	writeYAML(t, path, testConfigYAML(addr, filepath.Join(filepath.Dir(path), "data"), "debug"))
	require.NoError(t, holder.Reload(context.Background()))

	require.Eventually(t, func() bool {
		return zerolog.GlobalLevel() == zerolog.DebugLevel
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBuild_RejectsUnknownHostMode(t *testing.T) {
	cfg := config.Default()
	cfg.Host.Mode = "obs"
	holder := config.NewConfigHolder(cfg, config.NewLoader("", ""))
	_, err := Build(context.Background(), holder)
	assert.ErrorIs(t, err, ErrUnsupportedHostMode)
}
