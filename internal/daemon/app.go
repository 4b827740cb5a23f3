// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon assembles and runs the deckbridge process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/deckbridge/internal/api"
	"github.com/ManuGH/deckbridge/internal/api/middleware"
	"github.com/ManuGH/deckbridge/internal/bus"
	"github.com/ManuGH/deckbridge/internal/config"
	"github.com/ManuGH/deckbridge/internal/control"
	"github.com/ManuGH/deckbridge/internal/health"
	"github.com/ManuGH/deckbridge/internal/host"
	"github.com/ManuGH/deckbridge/internal/host/sim"
	"github.com/ManuGH/deckbridge/internal/journal"
	xglog "github.com/ManuGH/deckbridge/internal/log"
	"github.com/ManuGH/deckbridge/internal/mirror"
	"github.com/ManuGH/deckbridge/internal/remote"
	"github.com/ManuGH/deckbridge/internal/telemetry"
	"github.com/rs/zerolog"
)

// httpConnHeadroom is added to remote.maxConnections for probes and API calls.
const httpConnHeadroom = 32

// App owns the long-lived runtime: dispatch loop, host engine, HTTP server,
// config watcher and optional journal, mirror and tracing.
type App struct {
	logger       zerolog.Logger
	cfgHolder    *config.ConfigHolder
	reloadSignal os.Signal

	engine    *sim.Engine
	svc       *control.Service
	remote    *remote.Server
	manager   Manager
	journal   *journal.Journal
	history   *journal.Writer
	mirror    *mirror.RedisMirror
	telemetry *telemetry.Provider
}

// Build wires every component from the holder's current configuration.
// Resources opened before a failure are released.
func Build(ctx context.Context, holder *config.ConfigHolder) (app *App, err error) {
	cfg := holder.Get()
	a := &App{
		logger:       xglog.WithComponent("daemon"),
		cfgHolder:    holder,
		reloadSignal: syscall.SIGHUP,
	}
	defer func() {
		if err != nil {
			a.closeResources(context.WithoutCancel(ctx))
		}
	}()

	if cfg.Host.Mode != config.HostModeSim {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedHostMode, cfg.Host.Mode)
	}

	a.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	if cfg.Journal.Enabled {
		if err := health.CheckWritableDir(filepath.Dir(cfg.Journal.Path)); err != nil {
			return nil, fmt.Errorf("journal directory: %w", err)
		}
		a.journal, err = journal.Open(ctx, cfg.Journal.Path, cfg.Journal.Retain)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	if cfg.Mirror.RedisAddr != "" {
		m, merr := mirror.NewRedisMirror(ctx, mirror.Config{
			Addr:    cfg.Mirror.RedisAddr,
			Channel: cfg.Mirror.Channel,
		}, xglog.WithComponent("mirror"))
		if merr != nil {
			a.logger.Warn().
				Err(merr).
				Str("event", "mirror.disabled").
				Msg("redis mirror unavailable, continuing without it")
		} else {
			a.mirror = m
		}
	}

	a.engine = sim.New(sim.Options{
		Autopilot: true,
		StepDelay: cfg.Host.StepDelay,
		StopCode:  cfg.Host.FailStopCode,
	})

	b := bus.NewMemoryBus(cfg.Remote.SendBuffer)
	opts := control.Options{
		Host:           a.engine,
		Frontend:       a.engine,
		Bus:            b,
		PublishTimeout: cfg.Broadcast.PublishTimeout,
	}
	if a.journal != nil {
		a.history = journal.NewWriter(a.journal, journal.DefaultQueueSize, 0)
		opts.Journal = a.history
	}
	if a.mirror != nil {
		opts.Mirror = a.mirror
	}
	a.svc = control.New(opts)

	a.remote = remote.NewServer(remote.Config{
		ReadLimit:      cfg.Remote.ReadLimit,
		PingInterval:   cfg.Remote.PingInterval,
		PongWait:       cfg.Remote.PongWait,
		WriteWait:      cfg.Remote.WriteWait,
		MaxConnections: cfg.Remote.MaxConnections,
	}, a.svc, b)

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewLoopChecker(a.svc.Running))
	apiDeps := api.Deps{
		Remote:   a.remote,
		State:    a.svc,
		Reloader: holder,
		Health:   hm,
		RateLimit: middleware.RateLimitConfig{
			RequestLimit: cfg.RateLimit.Requests,
			WindowSize:   cfg.RateLimit.Window,
		},
	}
	if cfg.Telemetry.Enabled {
		apiDeps.TracingService = cfg.LogService
	}
	if a.journal != nil {
		apiDeps.History = a.journal
		hm.RegisterChecker(health.NewPingChecker("journal", a.journal.Ping, false))
	}
	if a.mirror != nil {
		hm.RegisterChecker(health.NewPingChecker("mirror", a.mirror.HealthCheck, true))
	}

	serverCfg := DefaultServerConfig(cfg.ListenAddr)
	serverCfg.MaxConns = cfg.Remote.MaxConnections + httpConnHeadroom
	a.manager, err = NewManager(serverCfg, Deps{
		Logger:     xglog.WithComponent("http"),
		APIHandler: api.NewServer(apiDeps).Handler(),
	})
	if err != nil {
		return nil, err
	}
	a.manager.RegisterShutdownHook("remote", a.remote.Shutdown)

	return a, nil
}

// Run starts all subsystems and blocks until ctx is cancelled or one fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := a.cfgHolder.StartWatcher(gctx); err != nil {
		a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
	}
	defer a.cfgHolder.Stop()

	applyCh := make(chan config.Config, 1)
	a.cfgHolder.RegisterListener(applyCh)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case cfg := <-applyCh:
				a.apply(cfg)
			}
		}
	})

	if a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-gctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					if err := a.cfgHolder.Reload(gctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	g.Go(func() error {
		if err := a.svc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("control service: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.announceLoaded(gctx)
	})

	g.Go(func() error {
		return a.manager.Start(gctx)
	})

	err := g.Wait()
	a.closeResources(context.WithoutCancel(ctx))
	return err
}

// announceLoaded fires the frontend "loaded" event once the dispatch loop
// accepts work, so outputs that already exist get bound.
func (a *App) announceLoaded(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for !a.svc.Running() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	a.engine.FireFrontend(host.FrontendLoaded)
	a.logger.Info().Str("event", "daemon.ready").Msg("deckbridge ready")
	return nil
}

// apply pushes runtime-applicable settings from a reloaded config.
func (a *App) apply(cfg config.Config) {
	if err := xglog.SetLevel(cfg.LogLevel); err != nil {
		a.logger.Warn().Err(err).Msg("log level not applied")
	}
	a.svc.SetPublishTimeout(cfg.Broadcast.PublishTimeout)
	a.logger.Info().
		Str("event", "config.applied").
		Str("log_level", cfg.LogLevel).
		Dur("publish_timeout", cfg.Broadcast.PublishTimeout).
		Msg("applied reloaded configuration")
}

func (a *App) closeResources(ctx context.Context) {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close mirror")
		}
	}
	if a.history != nil {
		_ = a.history.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close journal")
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("shutdown telemetry")
		}
	}
}
