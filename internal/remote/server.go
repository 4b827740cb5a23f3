// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package remote serves remote control surfaces over WebSocket. Each
// connection is one endpoint: its reader feeds requests to the control
// service and its writer drains the endpoint's bus topic.
package remote

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/deckbridge/internal/broadcast"
	"github.com/ManuGH/deckbridge/internal/bus"
	xglog "github.com/ManuGH/deckbridge/internal/log"
	"github.com/ManuGH/deckbridge/internal/metrics"
	"github.com/ManuGH/deckbridge/internal/rpc"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Config tunes the WebSocket transport.
type Config struct {
	ReadLimit      int64
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxConnections int
}

// DefaultConfig returns transport defaults.
func DefaultConfig() Config {
	return Config{
		ReadLimit:      64 * 1024,
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxConnections: 64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = (c.PongWait * 9) / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = d.MaxConnections
	}
	return c
}

// Handler processes a decoded request from an endpoint.
type Handler interface {
	HandleRequest(ctx context.Context, endpointID string, req rpc.Request) error
}

// Server is an http.Handler upgrading requests to WebSocket endpoints.
type Server struct {
	cfg      Config
	handler  Handler
	bus      bus.Bus
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu     sync.Mutex
	active int
	conns  map[string]*websocket.Conn
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server delivering requests to h and reading replies from b.
func NewServer(cfg Config, h Handler, b bus.Bus) *Server {
	return &Server{
		cfg:     cfg.withDefaults(),
		handler: h,
		bus:     b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Control surfaces connect from local plugins without an Origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: xglog.WithComponent("remote"),
		conns:  make(map[string]*websocket.Conn),
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.admit() {
		http.Error(w, "too many endpoints", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release("")
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	sub, err := s.bus.Subscribe(context.Background(), broadcast.EndpointTopic(id))
	if err != nil {
		s.release("")
		_ = conn.Close()
		s.logger.Error().Err(err).Msg("endpoint subscription failed")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sub.Close()
		_ = conn.Close()
		s.release("")
		return
	}
	s.conns[id] = conn
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()
	metrics.RemoteEndpoints.Inc()

	logger := s.logger.With().Str(xglog.FieldEndpointID, id).Str("remote_addr", r.RemoteAddr).Logger()
	logger.Info().Str(xglog.FieldEvent, "endpoint.connected").Msg("remote endpoint connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(conn, sub, logger)
	}()

	ctx := xglog.ContextWithEndpointID(context.Background(), id)
	s.readPump(ctx, id, conn, logger)

	_ = sub.Close()
	<-writerDone
	_ = conn.Close()
	s.release(id)
	metrics.RemoteEndpoints.Dec()
	logger.Info().Str(xglog.FieldEvent, "endpoint.disconnected").Msg("remote endpoint disconnected")
}

func (s *Server) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.active >= s.cfg.MaxConnections {
		return false
	}
	s.active++
	return true
}

func (s *Server) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if id != "" {
		delete(s.conns, id)
	}
}

func (s *Server) readPump(ctx context.Context, id string, conn *websocket.Conn, logger zerolog.Logger) {
	conn.SetReadLimit(s.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		req, err := rpc.DecodeRequest(data)
		if err != nil {
			metrics.IncRemoteRequest("", "malformed")
			logger.Warn().Err(err).Msg("malformed request dropped")
			continue
		}

		reqCtx := xglog.ContextWithRequestID(ctx, requestID(req))
		if err := s.handler.HandleRequest(reqCtx, id, req); err != nil {
			logger.Debug().
				Err(err).
				Str(xglog.FieldRPCEvent, string(req.Event)).
				Msg("request answered with error")
		}
	}
}

func requestID(req rpc.Request) string {
	if req.ID != "" {
		return req.ID
	}
	return uuid.NewString()
}

func (s *Server) writePump(conn *websocket.Conn, sub bus.Subscriber, logger zerolog.Logger) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			resp, isResp := msg.(rpc.Response)
			if !isResp {
				continue
			}
			frame, err := rpc.Encode(resp)
			if err != nil {
				logger.Error().Err(err).Msg("response not encodable")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug().Err(err).Msg("write failed")
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// Connections returns the number of connected endpoints.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown refuses new endpoints, closes the connected ones and waits for
// their handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(s.cfg.WriteWait)
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
