// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JournalQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deckbridge_journal_queue_depth",
		Help: "History entries waiting to be written",
	})

	// JournalDroppedTotal counts entries lost to a full queue or a failed write.
	JournalDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deckbridge_journal_dropped_total",
		Help: "History entries that were not recorded",
	})
)
