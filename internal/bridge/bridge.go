// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bridge answers remote-control requests by issuing host commands,
// recording subscriptions and replying to the requesting endpoint.
//
// Start and stop commands are acknowledged asynchronously: the bridge only
// marks the command pending and the router replies once the host confirms
// with a signal.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
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
)

var subscribeResource = regexp.MustCompile(`(.+)`)

// Replier delivers replies and records subscriptions.
type Replier interface {
	CommitTo(ctx context.Context, resp rpc.Response, endpointID string) error
	Subscribe(endpointID, key string, topic rpc.Topic) bool
}

// Deps are the collaborators of a Bridge.
type Deps struct {
	Engine   host.Engine
	Registry *output.Registry
	Tracker  *output.Tracker
	Replier  Replier
	// Journal is optional.
	Journal journal.Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// Bridge must only be called from the dispatch loop.
type Bridge struct {
	deps   Deps
	logger zerolog.Logger
	tracer trace.Tracer
}

// New creates a bridge.
func New(deps Deps) *Bridge {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Bridge{
		deps:   deps,
		logger: xglog.WithComponent("bridge"),
		tracer: telemetry.Tracer("bridge"),
	}
}

// HandleRequest dispatches req from endpointID. Errors are already answered
// with an error reply; callers only log them.
func (b *Bridge) HandleRequest(ctx context.Context, endpointID string, req rpc.Request) error {
	ctx, span := b.tracer.Start(ctx, "bridge.request",
		trace.WithAttributes(telemetry.RequestAttributes(string(req.Event), req.Resource, endpointID)...))
	defer span.End()

	err := b.dispatch(ctx, endpointID, req)
	outcome := "ok"
	if err != nil {
		outcome = classify(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(telemetry.ErrorAttributes(outcome)...)
	}
	label := string(req.Event)
	if !req.Event.Known() {
		label = "unknown"
	}
	metrics.IncRemoteRequest(label, outcome)
	return err
}

func (b *Bridge) dispatch(ctx context.Context, endpointID string, req rpc.Request) error {
	switch req.Event {
	case rpc.StreamingStatusChangedSubscribe:
		return b.Subscribe(ctx, endpointID, host.Streaming, req)
	case rpc.RecordingStatusChangedSubscribe:
		return b.Subscribe(ctx, endpointID, host.Recording, req)
	case rpc.StartStreaming:
		return b.Start(ctx, endpointID, host.Streaming, req)
	case rpc.StartRecording:
		return b.Start(ctx, endpointID, host.Recording, req)
	case rpc.StopStreaming:
		return b.Stop(ctx, endpointID, host.Streaming, req)
	case rpc.StopRecording:
		return b.Stop(ctx, endpointID, host.Recording, req)
	case rpc.GetRecordStreamState:
		return b.QueryState(ctx, endpointID, req)
	default:
		b.reply(ctx, endpointID, rpc.ErrorFlag(req.Event, true).ReplyTo(req, req.Method))
		return fmt.Errorf("%w: %q", ErrUnknownEvent, req.Event)
	}
}

// Subscribe registers endpointID for status notifications of kind. The
// reply carries the subscription key "<serviceName>.<method>".
func (b *Bridge) Subscribe(ctx context.Context, endpointID string, kind host.OutputKind, req rpc.Request) error {
	handler := "subscribeStreamStatusChange"
	if kind == host.Recording {
		handler = "subscribeRecordStatusChange"
	}
	event := rpc.StatusEvent(kind)
	if req.Event != event {
		return b.mismatch(ctx, endpointID, req, handler)
	}
	if err := checkResource(req.Resource, subscribeResource); err != nil {
		b.logger.Error().
			Err(err).
			Str(xglog.FieldEndpointID, endpointID).
			Str(xglog.FieldRPCEvent, string(req.Event)).
			Msg("subscription without resource rejected")
		b.reply(ctx, endpointID, rpc.ErrorFlag(event, true).ReplyTo(req, handler))
		return err
	}

	key := fmt.Sprintf("%s.%s", req.ServiceName, req.Method)
	created := b.deps.Replier.Subscribe(endpointID, key, event.Topic())
	b.logger.Info().
		Str(xglog.FieldEvent, "subscription.added").
		Str(xglog.FieldEndpointID, endpointID).
		Str(xglog.FieldTopic, string(event.Topic())).
		Str("key", key).
		Bool("new", created).
		Msg("endpoint subscribed to status changes")

	b.reply(ctx, endpointID, rpc.Label(event, key).ReplyTo(req, handler))
	return nil
}

// Start issues a start command when the output of kind is not active. The
// confirmation is sent by the router on the host's start or stop signal.
func (b *Bridge) Start(ctx context.Context, endpointID string, kind host.OutputKind, req rpc.Request) error {
	handler := "start" + resourceSuffix(kind)
	event := rpc.StartEvent(kind)
	if req.Event != event {
		return b.mismatch(ctx, endpointID, req, handler)
	}
	if err := checkResource(req.Resource, commandResource(handler)); err != nil {
		return b.reject(ctx, endpointID, kind, host.Start, req, handler, err)
	}
	if b.deps.Engine.IsOutputActive(kind) {
		return b.reject(ctx, endpointID, kind, host.Start, req, handler,
			fmt.Errorf("%w: %s already active", ErrOutputBusy, kind))
	}
	b.issue(ctx, kind, host.Start, output.AwaitingStart)
	return nil
}

// Stop issues a stop command when the output of kind is active.
func (b *Bridge) Stop(ctx context.Context, endpointID string, kind host.OutputKind, req rpc.Request) error {
	handler := "stop" + resourceSuffix(kind)
	event := rpc.StopEvent(kind)
	if req.Event != event {
		return b.mismatch(ctx, endpointID, req, handler)
	}
	if err := checkResource(req.Resource, commandResource(handler)); err != nil {
		return b.reject(ctx, endpointID, kind, host.Stop, req, handler, err)
	}
	if !b.deps.Engine.IsOutputActive(kind) {
		return b.reject(ctx, endpointID, kind, host.Stop, req, handler,
			fmt.Errorf("%w: %s not active", ErrOutputBusy, kind))
	}
	b.issue(ctx, kind, host.Stop, output.AwaitingStop)
	return nil
}

// QueryState rebinds both outputs and replies with their state labels.
func (b *Bridge) QueryState(ctx context.Context, endpointID string, req rpc.Request) error {
	const handler = "getRecordStreamState"
	if req.Event != rpc.GetRecordStreamState {
		return b.mismatch(ctx, endpointID, req, handler)
	}
	for _, kind := range host.Kinds {
		if err := b.deps.Registry.Bind(kind); err != nil && !errors.Is(err, output.ErrNoActiveOutput) {
			b.logger.Warn().Err(err).Str(xglog.FieldOutputKind, kind.String()).Msg("rebind on state query failed")
		}
	}
	pair := rpc.StatePair{
		Streaming: b.deps.Tracker.State(host.Streaming).Label(),
		Recording: b.deps.Tracker.State(host.Recording).Label(),
	}
	b.reply(ctx, endpointID, rpc.Response{Event: rpc.GetRecordStreamState, Data: pair}.ReplyTo(req, handler))
	return nil
}

func (b *Bridge) issue(ctx context.Context, kind host.OutputKind, cmd host.Command, tag output.Pending) {
	b.deps.Tracker.SetPending(kind, tag, b.deps.Now())
	b.deps.Engine.IssueCommand(kind, cmd)
	metrics.IncCommand(kind.String(), string(cmd), "issued")
	b.logger.Info().
		Str(xglog.FieldEvent, "command.issued").
		Str(xglog.FieldOutputKind, kind.String()).
		Str(xglog.FieldCommand, string(cmd)).
		Str(xglog.FieldPending, string(tag)).
		Msg("host command issued, awaiting confirmation")
	if b.deps.Journal != nil {
		if err := b.deps.Journal.Record(ctx, journal.Entry{
			At:      b.deps.Now(),
			Kind:    kind.String(),
			Type:    journal.TypeCommand,
			Command: string(cmd),
		}); err != nil {
			b.logger.Warn().Err(err).Str(xglog.FieldEvent, "journal.write_failed").Msg("history entry not recorded")
		}
	}
}

func (b *Bridge) reject(ctx context.Context, endpointID string, kind host.OutputKind, cmd host.Command, req rpc.Request, handler string, cause error) error {
	metrics.IncCommand(kind.String(), string(cmd), "rejected")
	b.logger.Warn().
		Err(cause).
		Str(xglog.FieldEndpointID, endpointID).
		Str(xglog.FieldOutputKind, kind.String()).
		Str(xglog.FieldCommand, string(cmd)).
		Msg("command rejected")
	b.reply(ctx, endpointID, rpc.ErrorFlag(req.Event, true).ReplyTo(req, handler))
	return cause
}

func (b *Bridge) mismatch(ctx context.Context, endpointID string, req rpc.Request, handler string) error {
	err := fmt.Errorf("%s: %w: got %s", handler, ErrEventMismatch, req.Event)
	b.logger.Warn().
		Err(err).
		Str(xglog.FieldEndpointID, endpointID).
		Str(xglog.FieldRPCEvent, string(req.Event)).
		Msg("request routed to the wrong handler")
	b.reply(ctx, endpointID, rpc.ErrorFlag(req.Event, true).ReplyTo(req, handler))
	return err
}

func (b *Bridge) reply(ctx context.Context, endpointID string, resp rpc.Response) {
	if err := b.deps.Replier.CommitTo(ctx, resp, endpointID); err != nil {
		b.logger.Warn().Err(err).Str(xglog.FieldEndpointID, endpointID).Msg("reply not delivered")
	}
}

func checkResource(resource string, pattern *regexp.Regexp) error {
	loc := pattern.FindStringIndex(resource)
	if loc == nil || loc[0] != 0 || loc[1] != len(resource) {
		return &ValidationError{Field: "resource", Value: resource, Pattern: pattern.String()}
	}
	return nil
}

var commandPatterns = map[string]*regexp.Regexp{
	"startStreaming": regexp.MustCompile(`startStreaming`),
	"stopStreaming":  regexp.MustCompile(`stopStreaming`),
	"startRecording": regexp.MustCompile(`startRecording`),
	"stopRecording":  regexp.MustCompile(`stopRecording`),
}

func commandResource(handler string) *regexp.Regexp {
	return commandPatterns[handler]
}

func resourceSuffix(kind host.OutputKind) string {
	if kind == host.Recording {
		return "Recording"
	}
	return "Streaming"
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrOutputBusy):
		return "busy"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrEventMismatch):
		return "mismatch"
	default:
		return "error"
	}
}
