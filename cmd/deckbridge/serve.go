// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/deckbridge/internal/config"
	"github.com/ManuGH/deckbridge/internal/daemon"
	xglog "github.com/ManuGH/deckbridge/internal/log"
	"github.com/ManuGH/deckbridge/internal/version"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), strings.TrimSpace(opts.configPath))
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	xglog.Configure(xglog.Config{Level: "info", Version: version.Version})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", configPath).
			Msg("failed to load configuration")
		return fmt.Errorf("load configuration: %w", err)
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")

	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", configPath).
		Str("listen", cfg.ListenAddr).
		Bool("journal", cfg.Journal.Enabled).
		Bool("mirror", cfg.Mirror.RedisAddr != "").
		Bool("telemetry", cfg.Telemetry.Enabled).
		Msg("configuration loaded")
	for _, key := range loader.UnknownEnvKeys(os.Environ()) {
		logger.Warn().Str("key", key).Msg("ignoring unknown environment variable")
	}

	app, err := daemon.Build(ctx, config.NewConfigHolder(cfg, loader))
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}
	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	logger.Info().Str("event", "daemon.stopped").Msg("deckbridge stopped")
	return nil
}
