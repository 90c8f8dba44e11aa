// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// matchTableDelimiter separates fields in the exported match table. The
// downstream classification tooling consumes semicolon-delimited CSV.
const matchTableDelimiter = ';'

// Derived table filenames, matching the reporting stage's expectations.
const (
	MatchTableFile           = "concept_matches_with_patterns.csv"
	MethodCountsFile         = "match_type_counts.csv"
	MatchesByFrameworkFile   = "matches_by_framework.csv"
	PatternsByMatchCountFile = "patterns_by_match_count.csv"
	TopMatchedConceptsFile   = "top_matched_concepts.csv"
)

// topMatchedConceptsLimit bounds the top-matched-concepts table.
const topMatchedConceptsLimit = 25

// WriteMatchTable writes the full match table as semicolon-delimited CSV.
func WriteMatchTable(w io.Writer, t *MatchTable) error {
	cw := csv.NewWriter(w)
	cw.Comma = matchTableDelimiter

	header := []string{"project", "concept", "kind", "pattern_id", "pattern", "match_type", "confidence", "provenance"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing match table header: %w", err)
	}
	for _, r := range t.Rows() {
		rec := []string{
			r.Project,
			r.CandidateName,
			r.CandidateKind,
			r.PatternID,
			r.PatternName,
			r.Method,
			strconv.FormatFloat(r.Confidence, 'f', 4, 64),
			r.Provenance,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing match table row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCountTable writes a derived (key, count) table as comma CSV.
func WriteCountTable(w io.Writer, keyHeader string, rows []CountRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{keyHeader, "count"}); err != nil {
		return fmt.Errorf("writing count table header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Key, strconv.Itoa(r.Count)}); err != nil {
			return fmt.Errorf("writing count table row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportAll writes the match table and every derived table into dir,
// creating it if needed.
//
// Outputs:
//
//	[]string - Paths of the files written, in write order.
//	error    - Non-nil on the first filesystem or encoding failure.
func ExportAll(dir string, t *MatchTable) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report dir %s: %w", dir, err)
	}

	var written []string
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		if err := fn(f); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	if err := write(MatchTableFile, func(w io.Writer) error {
		return WriteMatchTable(w, t)
	}); err != nil {
		return written, err
	}
	if err := write(MethodCountsFile, func(w io.Writer) error {
		return WriteCountTable(w, "match_type", t.MethodCounts())
	}); err != nil {
		return written, err
	}
	if err := write(MatchesByFrameworkFile, func(w io.Writer) error {
		return WriteCountTable(w, "framework", t.MatchesByFramework())
	}); err != nil {
		return written, err
	}
	if err := write(PatternsByMatchCountFile, func(w io.Writer) error {
		return WriteCountTable(w, "pattern", t.PatternsByMatchCount())
	}); err != nil {
		return written, err
	}
	if err := write(TopMatchedConceptsFile, func(w io.Writer) error {
		return WriteCountTable(w, "concept", t.TopMatchedConcepts(topMatchedConceptsLimit))
	}); err != nil {
		return written, err
	}
	return written, nil
}
