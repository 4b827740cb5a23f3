// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deckbridge_dispatch_queue_depth",
		Help: "Jobs waiting on the single-owner dispatch loop",
	})

	DispatchPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deckbridge_dispatch_panics_total",
		Help: "Recovered panics inside dispatch jobs",
	})
)
