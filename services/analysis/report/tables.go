// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package report turns aggregated match records into the tabular outputs
// consumed by downstream reporting: the main match table plus the derived
// summary tables (match-method counts, matches by framework, patterns by
// match count, top matched concepts).
package report

import (
	"fmt"
	"sort"

	"github.com/qpatterns/qpa/services/analysis/atlas"
	"github.com/qpatterns/qpa/services/analysis/matching"
)

// Row is one line of the final match table.
type Row struct {
	Project       string
	CandidateName string
	CandidateKind string
	PatternID     string
	PatternName   string
	Method        string
	Confidence    float64

	// Provenance names the knowledge-base entry that justified the match,
	// as framework/name.
	Provenance string
}

// MatchTable is the reporting-ready view of one analysis run.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type MatchTable struct {
	rows []Row
}

// BuildMatchTable converts aggregated match records into the match table,
// resolving pattern names from the catalog.
//
// Outputs:
//
//	*MatchTable - Rows in record order (candidate first-appearance order).
//	error       - Non-nil when a record references a pattern ID absent from
//	              the catalog. That indicates corrupt inputs slipped past
//	              loading and the run must not publish results.
func BuildMatchTable(records []matching.Record, catalog *atlas.Catalog) (*MatchTable, error) {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		pattern, err := catalog.Require(r.PatternID)
		if err != nil {
			return nil, fmt.Errorf("match for %s: %w", r.Candidate.Name, err)
		}
		rows = append(rows, Row{
			Project:       r.Candidate.Origin,
			CandidateName: r.Candidate.Name,
			CandidateKind: string(r.Candidate.Kind),
			PatternID:     r.PatternID,
			PatternName:   pattern.Name,
			Method:        string(r.Method),
			Confidence:    r.Confidence,
			Provenance:    r.Source.Origin + "/" + r.Source.Name,
		})
	}
	return &MatchTable{rows: rows}, nil
}

// Rows returns the table rows. Callers must not mutate the returned slice.
func (t *MatchTable) Rows() []Row { return t.rows }

// Len returns the number of match rows.
func (t *MatchTable) Len() int { return len(t.rows) }

// =============================================================================
// Derived Tables
// =============================================================================

// CountRow is a (key, count) line of a derived summary table.
type CountRow struct {
	Key   string
	Count int
}

// MethodCounts tallies surviving matches by match method, descending by
// count with ties in method-name order for deterministic output.
func (t *MatchTable) MethodCounts() []CountRow {
	return countBy(t.rows, func(r Row) string { return r.Method })
}

// MatchesByFramework tallies surviving matches by the framework of the
// knowledge-base entry that justified them.
func (t *MatchTable) MatchesByFramework() []CountRow {
	return countBy(t.rows, func(r Row) string {
		// Provenance is framework/name; the framework is the first segment.
		for i := 0; i < len(r.Provenance); i++ {
			if r.Provenance[i] == '/' {
				return r.Provenance[:i]
			}
		}
		return r.Provenance
	})
}

// PatternsByMatchCount tallies surviving matches per pattern, keyed by
// pattern name.
func (t *MatchTable) PatternsByMatchCount() []CountRow {
	return countBy(t.rows, func(r Row) string { return r.PatternName })
}

// TopMatchedConcepts returns the n candidates with the most surviving
// pattern matches, keyed as project/name.
func (t *MatchTable) TopMatchedConcepts(n int) []CountRow {
	counts := countBy(t.rows, func(r Row) string { return r.Project + "/" + r.CandidateName })
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// countBy tallies rows by key, descending by count then ascending by key.
func countBy(rows []Row, key func(Row) string) []CountRow {
	tally := make(map[string]int)
	for _, r := range rows {
		tally[key(r)]++
	}
	out := make([]CountRow, 0, len(tally))
	for k, c := range tally {
		out = append(out, CountRow{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
