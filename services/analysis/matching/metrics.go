// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	matchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qpa",
		Subsystem: "matcher",
		Name:      "matches_total",
		Help:      "Raw (pre-aggregation) matches by method",
	}, []string{"method"})

	candidatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qpa",
		Subsystem: "matcher",
		Name:      "candidates_total",
		Help:      "Candidate concepts evaluated",
	})

	degradedPairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qpa",
		Subsystem: "matcher",
		Name:      "degraded_pairs_total",
		Help:      "Candidate/knowledge-base pairs whose semantic evaluation degraded to no-match",
	})

	embedLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qpa",
		Subsystem: "matcher",
		Name:      "embed_latency_seconds",
		Help:      "Latency of embedding backend calls",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 3.0},
	})

	matchRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qpa",
		Subsystem: "matcher",
		Name:      "run_duration_seconds",
		Help:      "Wall time of full matcher chain runs",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})
)
