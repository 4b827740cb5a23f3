// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	xglog "github.com/ManuGH/deckbridge/internal/log"
	"github.com/ManuGH/deckbridge/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultQueueSize is the number of entries a Writer buffers.
const DefaultQueueSize = 256

// ErrQueueFull is returned when the Writer's buffer is full and the entry was dropped.
var ErrQueueFull = errors.New("journal queue full")

// Writer queues entries and writes them to the next Recorder on its own
// goroutine, so callers never wait on the database. Safe for concurrent use.
type Writer struct {
	next    Recorder
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	done   chan struct{}
	once   sync.Once
}

var _ Recorder = (*Writer)(nil)

// NewWriter starts a Writer in front of next. Each write is bounded by
// timeout; zero means 5s.
func NewWriter(next Recorder, queueSize int, timeout time.Duration) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	w := &Writer{
		next:    next,
		timeout: timeout,
		logger:  xglog.WithComponent("journal"),
		queue:   make(chan Entry, queueSize),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// Record enqueues e without blocking. The timestamp is taken here so the
// entry reflects when the event happened, not when it was written.
func (w *Writer) Record(_ context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- e:
		metrics.JournalQueueDepth.Set(float64(len(w.queue)))
		return nil
	default:
		metrics.JournalDroppedTotal.Inc()
		return ErrQueueFull
	}
}

// Close stops accepting entries and waits until the queued ones are written.
func (w *Writer) Close() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
	})
	<-w.done
	return nil
}

func (w *Writer) loop() {
	defer close(w.done)
	for e := range w.queue {
		metrics.JournalQueueDepth.Set(float64(len(w.queue)))
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := w.next.Record(ctx, e); err != nil {
			metrics.JournalDroppedTotal.Inc()
			w.logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "journal.write_failed").
				Str("kind", e.Kind).
				Str("type", string(e.Type)).
				Msg("history entry not recorded")
		}
		cancel()
	}
}
