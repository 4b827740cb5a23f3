// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package control owns the bridge state: output bindings, state machines,
// pending commands and subscriptions. Every access goes through a single
// dispatch loop, so none of the owned components lock.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/deckbridge/internal/bridge"
	"github.com/ManuGH/deckbridge/internal/broadcast"
	"github.com/ManuGH/deckbridge/internal/bus"
	"github.com/ManuGH/deckbridge/internal/dispatch"
	"github.com/ManuGH/deckbridge/internal/host"
	"github.com/ManuGH/deckbridge/internal/journal"
	xglog "github.com/ManuGH/deckbridge/internal/log"
	"github.com/ManuGH/deckbridge/internal/output"
	"github.com/ManuGH/deckbridge/internal/router"
	"github.com/ManuGH/deckbridge/internal/rpc"
	"github.com/rs/zerolog"
)

// Host is the full host boundary the service needs.
type Host interface {
	host.Engine
	host.SignalBus
}

// Options configures a Service.
type Options struct {
	Host Host
	// Frontend is optional; without it outputs are bound on state queries only.
	Frontend       host.Frontend
	Bus            bus.Bus
	Mirror         broadcast.Mirror
	Journal        journal.Recorder
	PublishTimeout time.Duration
	Now            func() time.Time
}

// Service is the owned context object tying the bridge together.
type Service struct {
	loop     *dispatch.Loop
	bus      bus.Bus
	registry *output.Registry
	tracker  *output.Tracker
	channel  *broadcast.Channel
	router   *router.Router
	bridge   *bridge.Bridge
	logger   zerolog.Logger
}

// New wires a service. Call Run to start processing.
func New(opts Options) *Service {
	s := &Service{
		loop:    dispatch.New(),
		bus:     opts.Bus,
		tracker: output.NewTracker(),
		logger:  xglog.WithComponent("control"),
	}
	if s.bus == nil {
		s.bus = bus.NewMemoryBus(0)
	}

	chOpts := []broadcast.Option{broadcast.WithPublishTimeout(opts.PublishTimeout)}
	if opts.Mirror != nil {
		chOpts = append(chOpts, broadcast.WithMirror(opts.Mirror))
	}
	s.channel = broadcast.NewChannel(s.bus, chOpts...)

	// Host callbacks may fire from inside a host command, which itself runs
	// on the loop, so they are posted rather than awaited.
	s.registry = output.NewRegistry(opts.Host, opts.Host, func(ev output.SignalEvent) {
		if !s.loop.Post(func() { s.router.Handle(context.Background(), ev) }) {
			s.logger.Debug().
				Str(xglog.FieldOutputKind, ev.Kind.String()).
				Str(xglog.FieldSignal, string(ev.Signal)).
				Msg("signal after shutdown dropped")
		}
	})

	s.router = router.New(router.Deps{
		Engine:   opts.Host,
		Registry: s.registry,
		Tracker:  s.tracker,
		Notifier: s.channel,
		Journal:  opts.Journal,
		Now:      opts.Now,
	})
	s.bridge = bridge.New(bridge.Deps{
		Engine:   opts.Host,
		Registry: s.registry,
		Tracker:  s.tracker,
		Replier:  s.channel,
		Journal:  opts.Journal,
		Now:      opts.Now,
	})

	if opts.Frontend != nil {
		// Frontend events are awaited so the output is bound before the
		// host emits its first signal.
		opts.Frontend.OnFrontendEvent(func(ev host.FrontendEvent) {
			if err := s.loop.Do(context.Background(), func() {
				s.router.HandleFrontend(context.Background(), ev)
			}); err != nil {
				s.logger.Debug().Err(err).Str(xglog.FieldEvent, "frontend."+string(ev)).Msg("frontend event dropped")
			}
		})
	}
	return s
}

// Run processes work until ctx is cancelled, then releases every binding.
func (s *Service) Run(ctx context.Context) error {
	err := s.loop.Run(ctx)
	s.registry.UnbindAll()
	return err
}

// Running reports whether the dispatch loop is processing work.
func (s *Service) Running() bool {
	return s.loop.Running()
}

// Bus returns the bus endpoint writers subscribe to.
func (s *Service) Bus() bus.Bus {
	return s.bus
}

// HandleRequest runs a remote request on the dispatch loop and waits for it.
func (s *Service) HandleRequest(ctx context.Context, endpointID string, req rpc.Request) error {
	jobCtx := context.WithoutCancel(xglog.ContextWithEndpointID(ctx, endpointID))
	var herr error
	if err := s.loop.Do(ctx, func() {
		herr = s.bridge.HandleRequest(jobCtx, endpointID, req)
	}); err != nil {
		return fmt.Errorf("handle %s: %w", req.Event, err)
	}
	return herr
}

// SetPublishTimeout changes the per-delivery timeout at runtime.
func (s *Service) SetPublishTimeout(d time.Duration) {
	s.channel.SetPublishTimeout(d)
}

// OutputStatus describes one output kind.
type OutputStatus struct {
	Kind         string     `json:"kind"`
	State        string     `json:"state"`
	Bound        bool       `json:"bound"`
	Handle       string     `json:"handle,omitempty"`
	Pending      string     `json:"pending"`
	PendingSince *time.Time `json:"pendingSince,omitempty"`
}

// Snapshot is a consistent view of the service state.
type Snapshot struct {
	Outputs       []OutputStatus           `json:"outputs"`
	Subscriptions []broadcast.Subscription `json:"subscriptions"`
}

// Snapshot reads the current state on the dispatch loop.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.loop.Do(ctx, func() {
		for _, kind := range host.Kinds {
			st := OutputStatus{
				Kind:  kind.String(),
				State: s.tracker.State(kind).Label(),
			}
			if h, ok := s.registry.Bound(kind); ok {
				st.Bound = true
				st.Handle = h.String()
			}
			p := s.tracker.Pending(kind)
			st.Pending = string(p.Tag)
			if p.Tag != output.PendingNone {
				since := p.IssuedAt
				st.PendingSince = &since
			}
			snap.Outputs = append(snap.Outputs, st)
		}
		snap.Subscriptions = s.channel.Subscriptions()
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	if snap.Subscriptions == nil {
		snap.Subscriptions = []broadcast.Subscription{}
	}
	return snap, nil
}
