// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteEndpoints is the number of connected remote control endpoints.
	RemoteEndpoints = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deckbridge_remote_endpoints",
		Help: "Connected remote control endpoints",
	})

	// RemoteRequestsTotal counts inbound remote requests by event and outcome.
	RemoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckbridge_remote_requests_total",
		Help: "Inbound remote requests by event and outcome",
	}, []string{"event", "outcome"}) // outcome=ok|invalid|busy|unknown_event|mismatch|malformed|error

	// Subscriptions is the number of live broadcast subscriptions.
	Subscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deckbridge_subscriptions",
		Help: "Broadcast subscriptions by topic",
	}, []string{"topic"})

	// BroadcastsTotal counts outbound notifications.
	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckbridge_broadcasts_total",
		Help: "Outbound notifications by event and delivery mode",
	}, []string{"event", "mode"}) // mode=direct|fanout

	// MirrorErrorsTotal counts failed mirror publishes.
	MirrorErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deckbridge_mirror_errors_total",
		Help: "Failed publishes to the broadcast mirror",
	})
)

// IncRemoteRequest records an inbound request outcome.
func IncRemoteRequest(event, outcome string) {
	if event == "" {
		event = "unknown"
	}
	RemoteRequestsTotal.WithLabelValues(event, outcome).Inc()
}

// IncBroadcast records an outbound notification.
func IncBroadcast(event, mode string) {
	BroadcastsTotal.WithLabelValues(event, mode).Inc()
}

// SetSubscriptions publishes the subscription count for a topic.
func SetSubscriptions(topic string, n int) {
	Subscriptions.WithLabelValues(topic).Set(float64(n))
}
