// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dispatch provides the single-owner goroutine that serializes every
// mutation of output bindings, state machines and subscriptions.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	xglog "github.com/ManuGH/deckbridge/internal/log"
	"github.com/ManuGH/deckbridge/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrStopped is returned when a job is submitted to a loop that is not running.
var ErrStopped = errors.New("dispatch loop stopped")

// Job runs on the loop goroutine.
type Job func()

// Loop runs jobs one at a time in submission order. The queue is unbounded so
// Post never blocks, which lets host callbacks enqueue work even when they
// fire from inside a job.
type Loop struct {
	logger zerolog.Logger

	mu      sync.Mutex
	queue   []Job
	wake    chan struct{}
	running bool
	stopped bool
	done    chan struct{}
}

// New creates a loop. Call Run to start processing.
func New() *Loop {
	return &Loop{
		logger: xglog.WithComponent("dispatch"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Post enqueues fn without waiting. It reports false if the loop has stopped.
func (l *Loop) Post(fn Job) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	depth := len(l.queue)
	l.mu.Unlock()

	metrics.DispatchQueueDepth.Set(float64(depth))
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do enqueues fn and waits for it to finish or for ctx to end.
// It must not be called from a job: the loop would wait on itself.
func (l *Loop) Do(ctx context.Context, fn Job) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch: %w", ctx.Err())
	case <-l.done:
		// The job may still have run before shutdown.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Running reports whether Run is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running && !l.stopped
}

// Run processes jobs until ctx is cancelled. Jobs queued at cancellation are
// drained before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return fmt.Errorf("dispatch: loop already started")
	}
	l.running = true
	l.mu.Unlock()

	l.logger.Debug().Str(xglog.FieldEvent, "dispatch.started").Msg("dispatch loop started")
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.mu.Unlock()
			l.drain()
			l.logger.Debug().Str(xglog.FieldEvent, "dispatch.stopped").Msg("dispatch loop stopped")
			return nil
		case <-l.wake:
			l.drain()
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			metrics.DispatchQueueDepth.Set(0)
			return
		}
		job := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.run(job)
	}
}

func (l *Loop) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchPanicsTotal.Inc()
			l.logger.Error().
				Str(xglog.FieldEvent, "dispatch.panic").
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("dispatch job panicked")
		}
	}()
	job()
}
