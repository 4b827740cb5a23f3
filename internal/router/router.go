// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package router turns host signal callbacks into state transitions and
// remote notifications.
package router

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/deckbridge/internal/host"
	"github.com/ManuGH/deckbridge/internal/journal"
	xglog "github.com/ManuGH/deckbridge/internal/log"
	"github.com/ManuGH/deckbridge/internal/metrics"
	"github.com/ManuGH/deckbridge/internal/output"
	"github.com/ManuGH/deckbridge/internal/rpc"
	"github.com/ManuGH/deckbridge/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// DefaultStopCode is used when a stop signal carries no code.
const DefaultStopCode int64 = -1

// Notifier fans a response out to subscribed endpoints.
type Notifier interface {
	CommitAll(ctx context.Context, resp rpc.Response) int
}

// Deps are the collaborators of a Router.
type Deps struct {
	Engine   host.Engine
	Registry *output.Registry
	Tracker  *output.Tracker
	Notifier Notifier
	// Journal is optional.
	Journal journal.Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// Router is the single entry point for host callbacks. It must only be
// called from the dispatch loop.
type Router struct {
	deps    Deps
	logger  zerolog.Logger
	tracer  trace.Tracer
	anomaly rate.Sometimes
}

// New creates a router.
func New(deps Deps) *Router {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Router{
		deps:    deps,
		logger:  xglog.WithComponent("router"),
		tracer:  telemetry.Tracer("router"),
		anomaly: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// Handle routes one host signal.
func (r *Router) Handle(ctx context.Context, ev output.SignalEvent) {
	kind, sig, h := ev.Kind, ev.Signal, ev.Data.Output
	ctx, span := r.tracer.Start(ctx, "router.signal",
		trace.WithAttributes(telemetry.SignalAttributes(kind.String(), string(sig), h.String())...))
	defer span.End()

	logger := r.logger.With().
		Str(xglog.FieldOutputKind, kind.String()).
		Str(xglog.FieldSignal, string(sig)).
		Stringer(xglog.FieldHandle, h).
		Logger()

	if !r.deps.Registry.Validate(kind, h) {
		metrics.IncSignal(kind.String(), string(sig), "stale")
		span.SetAttributes(telemetry.ErrorAttributes("stale_handle")...)
		r.rejectStale(ctx, logger, kind, h)
		return
	}

	code := DefaultStopCode
	if sig == host.SignalStop {
		code = ev.Data.CodeOr(DefaultStopCode)
		logger = logger.With().Int64(xglog.FieldCode, code).Logger()
	}

	from, to, err := r.deps.Tracker.Machine(kind).Apply(sig)
	if err != nil {
		metrics.IncSignal(kind.String(), string(sig), "anomaly")
		span.SetStatus(codes.Error, "unexpected signal")
		r.anomaly.Do(func() {
			logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "signal.anomaly").
				Str(xglog.FieldOldState, string(from)).
				Msg("signal does not apply to current state, ignored")
		})
		if sig == host.SignalStop {
			r.release(logger, kind, code)
		}
		return
	}

	metrics.IncSignal(kind.String(), string(sig), "applied")
	metrics.IncTransition(kind.String(), string(to))
	span.SetAttributes(telemetry.TransitionAttributes(string(from), string(to))...)
	logger.Info().
		Str(xglog.FieldEvent, "output.transition").
		Str(xglog.FieldOldState, string(from)).
		Str(xglog.FieldNewState, string(to)).
		Msg("output state changed")

	r.notify(ctx, rpc.Label(rpc.StatusEvent(kind), to.Label()))

	switch sig {
	case host.SignalStart:
		r.notify(ctx, rpc.ErrorFlag(rpc.StartEvent(kind), false))
		r.confirm(kind, output.AwaitingStart, "confirmed")
	case host.SignalStop:
		if code == 0 {
			r.notify(ctx, rpc.ErrorFlag(rpc.StopEvent(kind), false))
		} else {
			r.notify(ctx, rpc.ErrorFlag(rpc.StartEvent(kind), true))
		}
	}

	entry := journal.Entry{
		At:     ev.Received,
		Kind:   kind.String(),
		Type:   journal.TypeTransition,
		Signal: string(sig),
		From:   string(from),
		To:     string(to),
		Handle: h.String(),
	}
	if sig == host.SignalStop {
		c := code
		entry.Code = &c
	}
	r.record(ctx, entry)

	if sig == host.SignalStop {
		r.release(logger, kind, code)
	}
}

// rejectStale drops a signal from an output that is not the bound one.
// Streaming outputs get a stop command since an unknown output must not stay live.
func (r *Router) rejectStale(ctx context.Context, logger zerolog.Logger, kind host.OutputKind, h host.Handle) {
	if kind != host.Streaming {
		logger.Debug().Str(xglog.FieldEvent, "signal.stale").Msg("signal from unbound output dropped")
		return
	}
	logger.Warn().
		Str(xglog.FieldEvent, "signal.stale").
		Msg("signal from unbound output, stopping output")
	r.forceStop(ctx, kind, "stale_handle", h)
}

func (r *Router) forceStop(ctx context.Context, kind host.OutputKind, reason string, h host.Handle) {
	r.deps.Engine.IssueCommand(kind, host.Stop)
	metrics.IncForcedStop(kind.String(), reason)
	r.record(ctx, journal.Entry{
		Kind:    kind.String(),
		Type:    journal.TypeForcedStop,
		Command: string(host.Stop),
		Handle:  h.String(),
	})
}

// release ends the binding of a stopped output and settles its pending command.
func (r *Router) release(logger zerolog.Logger, kind host.OutputKind, code int64) {
	r.deps.Registry.Unbind(kind)
	outcome := "confirmed"
	if code != 0 {
		outcome = "failed"
	}
	if p, ok := r.deps.Tracker.Clear(kind); ok {
		metrics.ObserveCommandConfirm(kind.String(), string(p.Command()), outcome, r.deps.Now().Sub(p.IssuedAt))
		logger.Debug().
			Str(xglog.FieldPending, string(p.Tag)).
			Str("outcome", outcome).
			Msg("pending command settled")
	}
}

func (r *Router) confirm(kind host.OutputKind, tag output.Pending, outcome string) {
	p, ok := r.deps.Tracker.Resolve(kind, tag)
	if !ok {
		return
	}
	metrics.ObserveCommandConfirm(kind.String(), string(p.Command()), outcome, r.deps.Now().Sub(p.IssuedAt))
}

func (r *Router) notify(ctx context.Context, resp rpc.Response) {
	r.deps.Notifier.CommitAll(ctx, resp)
}

func (r *Router) record(ctx context.Context, e journal.Entry) {
	if r.deps.Journal == nil {
		return
	}
	if e.At.IsZero() {
		e.At = r.deps.Now()
	}
	if err := r.deps.Journal.Record(ctx, e); err != nil {
		r.logger.Warn().Err(err).Str(xglog.FieldEvent, "journal.write_failed").Msg("history entry not recorded")
	}
}

// HandleFrontend reacts to application lifecycle events by binding or
// releasing outputs.
func (r *Router) HandleFrontend(ctx context.Context, ev host.FrontendEvent) {
	logger := r.logger.With().Str(xglog.FieldEvent, "frontend."+string(ev)).Logger()

	switch ev {
	case host.FrontendLoaded:
		for _, kind := range host.Kinds {
			if err := r.deps.Registry.Bind(kind); err != nil && !errors.Is(err, output.ErrNoActiveOutput) {
				logger.Warn().Err(err).Str(xglog.FieldOutputKind, kind.String()).Msg("bind on load failed")
			}
		}
	case host.FrontendExit:
		r.deps.Registry.UnbindAll()
	case host.FrontendStreamingLaunching:
		if err := r.deps.Registry.Bind(host.Streaming); err != nil {
			logger.Error().Err(err).Msg("cannot observe launching stream, stopping it")
			h, _ := r.deps.Engine.ActiveOutput(host.Streaming)
			r.forceStop(ctx, host.Streaming, "bind_failed", h)
		}
	case host.FrontendRecordingStarting:
		if err := r.deps.Registry.Bind(host.Recording); err != nil {
			logger.Warn().Err(err).Msg("cannot observe starting recording")
		}
	default:
		logger.Debug().Msg("frontend event ignored")
	}
}
