// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the deckbridge HTTP surface: the remote-control
// WebSocket, probes, metrics and read-only state endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/deckbridge/internal/api/middleware"
	"github.com/ManuGH/deckbridge/internal/control"
	"github.com/ManuGH/deckbridge/internal/health"
	"github.com/ManuGH/deckbridge/internal/journal"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StateSource yields the current output and subscription state.
type StateSource interface {
	Snapshot(ctx context.Context) (control.Snapshot, error)
}

// HistorySource lists journal entries, newest first.
type HistorySource interface {
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Reloader reloads configuration on demand.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Deps are the collaborators served by the router. History and Reloader
// may be nil.
type Deps struct {
	Remote   http.Handler
	State    StateSource
	History  HistorySource
	Reloader Reloader
	Health   *health.Manager

	RateLimit      middleware.RateLimitConfig
	TracingService string
	RequestTimeout time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	deps Deps
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 5 * time.Second
	}
	return &Server{deps: deps}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.deps.TracingService,
		EnableLogging:  true,
	})
	limit := middleware.RateLimit(s.deps.RateLimit)

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.With(limit).Handle("/ws", s.deps.Remote)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limit)
		r.Get("/outputs", s.handleOutputs)
		r.Get("/history", s.handleHistory)
		r.Post("/config/reload", s.handleConfigReload)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	return r
}
