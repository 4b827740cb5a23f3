// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsTotal counts host signal callbacks by output kind, signal and routing result.
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckbridge_signals_total",
		Help: "Host signal callbacks by kind, signal and result",
	}, []string{"kind", "signal", "result"}) // result=applied|stale|anomaly

	// TransitionsTotal counts applied state machine transitions.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckbridge_transitions_total",
		Help: "Output state transitions by kind and target state",
	}, []string{"kind", "to"})

	// ForcedStopsTotal counts defensive stop commands issued after a stale signal.
	ForcedStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckbridge_forced_stops_total",
		Help: "Defensive stop commands issued to the host",
	}, []string{"kind", "reason"})

	// BindingsTotal counts registry bind attempts by outcome.
	BindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckbridge_bindings_total",
		Help: "Output handle bind attempts by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=bound|no_output|error

	// CommandsTotal counts host commands requested by remote endpoints.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckbridge_commands_total",
		Help: "Remote start/stop commands by kind, command and result",
	}, []string{"kind", "command", "result"}) // result=issued|rejected

	// CommandConfirmLatency tracks the time from issuing a command to the
	// confirming host signal.
	CommandConfirmLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deckbridge_command_confirm_seconds",
		Help:    "Time from host command to confirming signal",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind", "command", "outcome"})
)

// IncSignal records a routed host signal.
func IncSignal(kind, signal, result string) {
	SignalsTotal.WithLabelValues(kind, signal, result).Inc()
}

// IncTransition records an applied transition.
func IncTransition(kind, to string) {
	TransitionsTotal.WithLabelValues(kind, to).Inc()
}

// IncForcedStop records a defensive stop command.
func IncForcedStop(kind, reason string) {
	ForcedStopsTotal.WithLabelValues(kind, reason).Inc()
}

// IncBinding records a bind attempt.
func IncBinding(kind, outcome string) {
	BindingsTotal.WithLabelValues(kind, outcome).Inc()
}

// IncCommand records a remote command decision.
func IncCommand(kind, command, result string) {
	CommandsTotal.WithLabelValues(kind, command, result).Inc()
}

// ObserveCommandConfirm records how long the host took to confirm a command.
func ObserveCommandConfirm(kind, command, outcome string, d time.Duration) {
	CommandConfirmLatency.WithLabelValues(kind, command, outcome).Observe(d.Seconds())
}
