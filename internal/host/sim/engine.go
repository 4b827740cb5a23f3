// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sim implements an in-process host engine and signal bus.
//
// Every start creates a fresh output handle, mirroring hosts that recreate
// output objects across start/stop cycles. Tests drive it by hand with
// Launch/Emit/Release; the daemon enables Autopilot so remote commands
// progress through the full signal sequence on their own.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/deckbridge/internal/host"
	xglog "github.com/ManuGH/deckbridge/internal/log"
	"github.com/rs/zerolog"
)

// Options configures the simulated engine.
type Options struct {
	// Autopilot makes IssueCommand play the full signal sequence.
	Autopilot bool
	// StepDelay separates consecutive autopilot signals.
	StepDelay time.Duration
	// StopCode is the code reported on autopilot stops.
	StopCode int64
}

// CommandRecord is one IssueCommand call.
type CommandRecord struct {
	Kind    host.OutputKind
	Command host.Command
}

// BusOp is one Connect/Disconnect call, recorded in order.
type BusOp struct {
	Op     string // "connect" or "disconnect"
	Handle host.Handle
	Signal host.Signal
}

type slot struct {
	signal host.Signal
	cb     host.Callback
}

type output struct {
	handle host.Handle
	active bool
}

// Engine is a simulated host. It implements host.Engine, host.SignalBus and host.Frontend.
type Engine struct {
	opts   Options
	logger zerolog.Logger

	mu          sync.Mutex
	nextHandle  uint64
	nextSlot    uint64
	outputs     map[host.OutputKind]*output
	slots       map[host.Handle]map[host.SlotID]slot
	commands    []CommandRecord
	ops         []BusOp
	listeners   []host.FrontendListener
	failConnect map[host.Signal]bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a simulated engine.
func New(opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:        opts,
		logger:      xglog.WithComponent("host.sim"),
		outputs:     make(map[host.OutputKind]*output),
		slots:       make(map[host.Handle]map[host.SlotID]slot),
		failConnect: make(map[host.Signal]bool),
		ctx:         ctx,
		cancel:      cancel,
	}
}

var (
	_ host.Engine    = (*Engine)(nil)
	_ host.SignalBus = (*Engine)(nil)
	_ host.Frontend  = (*Engine)(nil)
)

// ActiveOutput implements host.Engine.
func (e *Engine) ActiveOutput(kind host.OutputKind) (host.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out, ok := e.outputs[kind]
	if !ok {
		return 0, false
	}
	return out.handle, true
}

// IsOutputActive implements host.Engine.
func (e *Engine) IsOutputActive(kind host.OutputKind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out, ok := e.outputs[kind]
	return ok && out.active
}

// IssueCommand implements host.Engine.
func (e *Engine) IssueCommand(kind host.OutputKind, cmd host.Command) {
	e.mu.Lock()
	e.commands = append(e.commands, CommandRecord{Kind: kind, Command: cmd})
	e.mu.Unlock()

	e.logger.Debug().
		Str(xglog.FieldOutputKind, kind.String()).
		Str(xglog.FieldCommand, string(cmd)).
		Msg("host command received")

	if !e.opts.Autopilot {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		switch cmd {
		case host.Start:
			e.playStart(kind)
		case host.Stop:
			e.playStop(kind, e.opts.StopCode)
		}
	}()
}

// Connect implements host.SignalBus.
func (e *Engine) Connect(h host.Handle, signal host.Signal, cb host.Callback) (host.SlotID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failConnect[signal] {
		return 0, host.ErrNoSignalHandler
	}
	set, ok := e.slots[h]
	if !ok {
		set = make(map[host.SlotID]slot)
		e.slots[h] = set
	}
	e.nextSlot++
	id := host.SlotID(e.nextSlot)
	set[id] = slot{signal: signal, cb: cb}
	e.ops = append(e.ops, BusOp{Op: "connect", Handle: h, Signal: signal})
	return id, nil
}

// Disconnect implements host.SignalBus.
func (e *Engine) Disconnect(h host.Handle, id host.SlotID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.slots[h]
	if !ok {
		return
	}
	s, ok := set[id]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(e.slots, h)
	}
	e.ops = append(e.ops, BusOp{Op: "disconnect", Handle: h, Signal: s.signal})
}

// OnFrontendEvent implements host.Frontend.
func (e *Engine) OnFrontendEvent(fn host.FrontendListener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// FireFrontend delivers ev to every listener synchronously.
func (e *Engine) FireFrontend(ev host.FrontendEvent) {
	e.mu.Lock()
	listeners := append([]host.FrontendListener(nil), e.listeners...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Launch replaces the output of kind with a fresh, inactive one and fires
// the matching frontend event.
func (e *Engine) Launch(kind host.OutputKind) host.Handle {
	e.mu.Lock()
	e.nextHandle++
	h := host.Handle(e.nextHandle)
	e.outputs[kind] = &output{handle: h}
	e.mu.Unlock()

	switch kind {
	case host.Streaming:
		e.FireFrontend(host.FrontendStreamingLaunching)
	case host.Recording:
		e.FireFrontend(host.FrontendRecordingStarting)
	}
	return h
}

// SetActive flips the active flag of the current output of kind.
func (e *Engine) SetActive(kind host.OutputKind, active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if out, ok := e.outputs[kind]; ok {
		out.active = active
	}
}

// Release destroys the current output of kind and its signal handler.
func (e *Engine) Release(kind host.OutputKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out, ok := e.outputs[kind]
	if !ok {
		return
	}
	delete(e.slots, out.handle)
	delete(e.outputs, kind)
}

// Emit delivers signal with data to every callback connected on h for that
// signal. Callbacks run on the calling goroutine.
func (e *Engine) Emit(h host.Handle, signal host.Signal, data host.Calldata) {
	e.mu.Lock()
	var cbs []host.Callback
	for _, s := range e.slots[h] {
		if s.signal == signal {
			cbs = append(cbs, s.cb)
		}
	}
	e.mu.Unlock()

	for _, cb := range cbs {
		cb(data)
	}
}

// EmitCurrent emits signal from the current output of kind.
func (e *Engine) EmitCurrent(kind host.OutputKind, signal host.Signal, code *int64) {
	h, ok := e.ActiveOutput(kind)
	if !ok {
		return
	}
	e.Emit(h, signal, host.Calldata{Output: h, Code: code})
}

// Drop simulates an unexpected output failure: the output stops with code
// without a preceding "stopping" signal.
func (e *Engine) Drop(kind host.OutputKind, code int64) {
	h, ok := e.ActiveOutput(kind)
	if !ok {
		return
	}
	e.SetActive(kind, false)
	e.Emit(h, host.SignalStop, host.Calldata{Output: h}.WithCode(code))
	e.Release(kind)
}

// FailConnect makes subsequent Connect calls for signal fail.
func (e *Engine) FailConnect(signal host.Signal, fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failConnect[signal] = fail
}

// Commands returns a copy of the recorded host commands.
func (e *Engine) Commands() []CommandRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]CommandRecord(nil), e.commands...)
}

// BusOps returns a copy of the recorded Connect/Disconnect calls.
func (e *Engine) BusOps() []BusOp {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]BusOp(nil), e.ops...)
}

// ResetRecords clears recorded commands and bus operations.
func (e *Engine) ResetRecords() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = nil
	e.ops = nil
}

// ConnectedSignals returns the signals currently connected on h.
func (e *Engine) ConnectedSignals(h host.Handle) []host.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []host.Signal
	for _, s := range e.slots[h] {
		out = append(out, s.signal)
	}
	return out
}

// Close stops autopilot goroutines and waits for them.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) playStart(kind host.OutputKind) {
	if e.IsOutputActive(kind) {
		return
	}
	h := e.Launch(kind)
	e.setActiveIf(kind, h, true)
	if !e.pause() {
		return
	}
	e.Emit(h, host.SignalStarting, host.Calldata{Output: h})
	if !e.pause() {
		return
	}
	e.Emit(h, host.SignalStart, host.Calldata{Output: h})
}

// playStop stops the output that was current when the command arrived. A
// start racing in during the pause replaces the output; the replacement is
// left alone.
func (e *Engine) playStop(kind host.OutputKind, code int64) {
	h, ok := e.ActiveOutput(kind)
	if !ok || !e.IsOutputActive(kind) {
		return
	}
	e.Emit(h, host.SignalStopping, host.Calldata{Output: h})
	if !e.pause() {
		return
	}
	e.setActiveIf(kind, h, false)
	e.Emit(h, host.SignalStop, host.Calldata{Output: h}.WithCode(code))
	e.releaseIf(kind, h)
}

func (e *Engine) setActiveIf(kind host.OutputKind, h host.Handle, active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if out, ok := e.outputs[kind]; ok && out.handle == h {
		out.active = active
	}
}

func (e *Engine) releaseIf(kind host.OutputKind, h host.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.slots, h)
	if out, ok := e.outputs[kind]; ok && out.handle == h {
		delete(e.outputs, kind)
	}
}

func (e *Engine) pause() bool {
	if e.opts.StepDelay <= 0 {
		return e.ctx.Err() == nil
	}
	t := time.NewTimer(e.opts.StepDelay)
	defer t.Stop()
	select {
	case <-e.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
