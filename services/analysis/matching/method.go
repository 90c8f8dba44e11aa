// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package matching implements the semantic concept-matching engine: a
// layered matcher chain (exact → normalized → fuzzy → semantic) over the
// cross product of candidate concepts and the knowledge base, a confidence
// model that makes scores comparable across methods, and an aggregator
// that keeps one best match per (candidate, pattern) pair.
package matching

import (
	"fmt"

	"github.com/qpatterns/qpa/services/analysis/concepts"
)

// Method identifies the strategy that produced a match. It is both
// provenance and a tie-break ranking signal during aggregation.
type Method string

const (
	MethodExact      Method = "EXACT"
	MethodNormalized Method = "NORMALIZED"
	MethodFuzzy      Method = "FUZZY"
	MethodSemantic   Method = "SEMANTIC"
)

// ParseMethod parses a method name from configuration. Both the canonical
// upper-case form and the lower-case form used in YAML are accepted.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "EXACT", "exact":
		return MethodExact, nil
	case "NORMALIZED", "normalized":
		return MethodNormalized, nil
	case "FUZZY", "fuzzy":
		return MethodFuzzy, nil
	case "SEMANTIC", "semantic":
		return MethodSemantic, nil
	default:
		return "", fmt.Errorf("unknown match method %q", s)
	}
}

// Record is one match between a candidate concept and a catalog pattern,
// justified by a knowledge-base concept.
//
// Description:
//
//	RawScore is method-specific (1.0 for EXACT, the similarity ratio for
//	FUZZY, cosine similarity for SEMANTIC). Confidence is the normalized
//	score in [0, 1] comparable across methods. Source is the knowledge-base
//	entry whose classification produced PatternID.
//
// Ownership:
//
//	Records reference the loaded concept slices and must not outlive them.
//	The aggregator replaces records wholesale; it never edits them in place.
type Record struct {
	Candidate  *concepts.Concept
	PatternID  string
	Method     Method
	RawScore   float64
	Confidence float64
	Source     *concepts.Concept
}
