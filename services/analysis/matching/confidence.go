// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matching

import (
	"fmt"

	"github.com/qpatterns/qpa/services/analysis/config"
)

// ConfidenceModel maps method-specific raw scores into a normalized
// confidence in [0, 1] comparable across methods, and ranks methods by
// configured reliability.
//
// Description:
//
//	EXACT always maps to 1.0. NORMALIZED maps to a fixed constant. FUZZY
//	and SEMANTIC map linearly from [threshold, 1.0] into their configured
//	output sub-ranges. The sub-ranges and the priority order come from
//	configuration so that the "method priority trumps raw score" policy can
//	be re-tuned without touching comparison logic.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type ConfidenceModel struct {
	policy     config.SelectionPolicy
	normalized float64
	fuzzy      config.BandConfig
	semantic   config.BandConfig
	priority   map[Method]int
}

// NewConfidenceModel builds a confidence model from the matcher
// configuration.
//
// Outputs:
//
//	*ConfidenceModel - The model. Never nil on success.
//	error            - Non-nil if the priority list names an unknown method.
func NewConfidenceModel(cfg *config.MatcherConfig) (*ConfidenceModel, error) {
	priority := make(map[Method]int, len(cfg.MethodPriority))
	for rank, name := range cfg.MethodPriority {
		m, err := ParseMethod(name)
		if err != nil {
			return nil, fmt.Errorf("method_priority[%d]: %w", rank, err)
		}
		if _, dup := priority[m]; dup {
			return nil, fmt.Errorf("method_priority: %s listed twice", m)
		}
		priority[m] = rank
	}

	return &ConfidenceModel{
		policy:     cfg.SelectionPolicy,
		normalized: cfg.NormalizedConfidence,
		fuzzy:      cfg.Fuzzy,
		semantic:   cfg.Semantic,
		priority:   priority,
	}, nil
}

// Normalize maps a raw score for the given method into [0, 1].
//
// Inputs:
//
//	method - The match method that produced the score.
//	raw    - The method-specific raw score. For FUZZY and SEMANTIC this is
//	         expected in [threshold, 1.0]; values outside are clamped.
func (m *ConfidenceModel) Normalize(method Method, raw float64) float64 {
	switch method {
	case MethodExact:
		return 1.0
	case MethodNormalized:
		return m.normalized
	case MethodFuzzy:
		return mapBand(m.fuzzy, raw)
	case MethodSemantic:
		return mapBand(m.semantic, raw)
	default:
		return 0.0
	}
}

// Priority returns the configured reliability rank for a method; lower is
// more reliable. Methods absent from the configuration rank last.
func (m *ConfidenceModel) Priority(method Method) int {
	rank, ok := m.priority[method]
	if !ok {
		return len(m.priority)
	}
	return rank
}

// Better reports whether record a should beat record b for the same
// (candidate, pattern) slot, before the stable earliest-encountered
// tie-break, which the aggregator applies by only replacing on a strict win.
//
// Description:
//
//	Under the method-priority policy the more reliable method wins outright
//	and confidence only breaks ties between equal methods. Under the
//	confidence policy the higher confidence wins and method priority breaks
//	exact confidence ties.
func (m *ConfidenceModel) Better(a, b *Record) bool {
	switch m.policy {
	case config.SelectionConfidence:
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return m.Priority(a.Method) < m.Priority(b.Method)
	default: // config.SelectionMethodPriority
		if pa, pb := m.Priority(a.Method), m.Priority(b.Method); pa != pb {
			return pa < pb
		}
		return a.Confidence > b.Confidence
	}
}

// FuzzyThreshold returns the inclusive fuzzy match threshold.
func (m *ConfidenceModel) FuzzyThreshold() float64 { return m.fuzzy.Threshold }

// SemanticThreshold returns the inclusive semantic match threshold.
func (m *ConfidenceModel) SemanticThreshold() float64 { return m.semantic.Threshold }

// mapBand maps raw in [band.Threshold, 1.0] linearly into
// [band.ConfidenceFloor, band.ConfidenceCeiling], clamping raw first.
func mapBand(band config.BandConfig, raw float64) float64 {
	if raw < band.Threshold {
		raw = band.Threshold
	}
	if raw > 1.0 {
		raw = 1.0
	}
	span := 1.0 - band.Threshold
	if span <= 0 {
		return band.ConfidenceFloor
	}
	frac := (raw - band.Threshold) / span
	return band.ConfidenceFloor + frac*(band.ConfidenceCeiling-band.ConfidenceFloor)
}
