// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package concepts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
)

// PatternIDSeparator separates multiple pattern IDs within the pattern_ids
// column of a knowledge-base CSV.
const PatternIDSeparator = "|"

// Sentinel errors returned by the loaders.
var (
	// ErrKnowledgeBaseEmpty indicates a knowledge-base file with a header
	// but no classified rows.
	ErrKnowledgeBaseEmpty = errors.New("knowledge base is empty")

	// ErrSchemaMismatch indicates a CSV whose header does not match the
	// expected column set.
	ErrSchemaMismatch = errors.New("csv schema mismatch")
)

// Column layouts. The extraction and classification stages emit these
// headers; order is fixed.
var (
	knowledgeBaseColumns = []string{"framework", "name", "kind", "signature", "file", "line", "pattern_ids"}
	corpusColumns        = []string{"project", "name", "kind", "signature", "file", "line"}
)

// LoadKnowledgeBase reads one classified knowledge-base CSV.
//
// Description:
//
//	Expected header: framework,name,kind,signature,file,line,pattern_ids.
//	pattern_ids holds one or more catalog IDs separated by "|". Every row
//	must carry at least one pattern ID; unclassified rows do not belong
//	in the knowledge base.
//
// Outputs:
//
//	[]Concept - Rows in file order.
//	error     - ErrSchemaMismatch on a bad header, ErrKnowledgeBaseEmpty on
//	            a header-only file, or a row-level parse error naming the line.
func LoadKnowledgeBase(path string) ([]Concept, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge base %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	rows, err := ParseKnowledgeBase(f)
	if err != nil {
		return nil, fmt.Errorf("knowledge base %s: %w", path, err)
	}
	return rows, nil
}

// ParseKnowledgeBase parses classified knowledge-base rows from a reader.
func ParseKnowledgeBase(r io.Reader) ([]Concept, error) {
	records, err := readTable(r, knowledgeBaseColumns)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrKnowledgeBaseEmpty
	}

	out := make([]Concept, 0, len(records))
	for i, rec := range records {
		c, err := rowToConcept(rec[1], rec[2], rec[3], rec[0], rec[4], rec[5])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		ids := splitPatternIDs(rec[6])
		if len(ids) == 0 {
			return nil, fmt.Errorf("row %d: concept %s has no pattern ids", i+2, c.Name)
		}
		c.PatternIDs = ids
		out = append(out, c)
	}
	return out, nil
}

// LoadCorpus reads one candidate corpus CSV for a target project.
//
// Description:
//
//	Expected header: project,name,kind,signature,file,line. Candidate rows
//	carry no classification; an empty corpus is not an error (a project
//	with nothing extracted simply yields zero matches).
func LoadCorpus(path string) ([]Concept, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	rows, err := ParseCorpus(f)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	return rows, nil
}

// ParseCorpus parses candidate rows from a reader.
func ParseCorpus(r io.Reader) ([]Concept, error) {
	records, err := readTable(r, corpusColumns)
	if err != nil {
		return nil, err
	}

	out := make([]Concept, 0, len(records))
	for i, rec := range records {
		c, err := rowToConcept(rec[1], rec[2], rec[3], rec[0], rec[4], rec[5])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Consolidate loads several per-framework knowledge-base files and merges
// them into a single knowledge base, forcing each row's Origin to the
// framework key it was loaded under.
//
// Description:
//
//	Frameworks are processed in sorted key order so the merged knowledge
//	base is deterministic regardless of map iteration. A missing file is
//	skipped with a warning, matching the original consolidation behavior;
//	an empty result after all files is ErrKnowledgeBaseEmpty.
//
// Inputs:
//
//	files  - framework name → knowledge-base CSV path.
//	logger - Logger for per-framework progress. Must not be nil.
func Consolidate(files map[string]string, logger *slog.Logger) ([]Concept, error) {
	if logger == nil {
		logger = slog.Default()
	}

	frameworks := make([]string, 0, len(files))
	for fw := range files {
		frameworks = append(frameworks, fw)
	}
	sort.Strings(frameworks)

	var merged []Concept
	for _, fw := range frameworks {
		path := files[fw]
		rows, err := LoadKnowledgeBase(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Warn("knowledge base file not found, skipping framework",
					slog.String("framework", fw),
					slog.String("path", path),
				)
				continue
			}
			return nil, fmt.Errorf("framework %s: %w", fw, err)
		}
		for i := range rows {
			rows[i].Origin = fw
		}
		merged = append(merged, rows...)
		logger.Info("knowledge base consolidated",
			slog.String("framework", fw),
			slog.Int("entries", len(rows)),
		)
	}

	if len(merged) == 0 {
		return nil, ErrKnowledgeBaseEmpty
	}
	return merged, nil
}

// =============================================================================
// Helpers
// =============================================================================

// readTable reads all CSV records and verifies the header matches the
// expected column layout exactly.
func readTable(r io.Reader, columns []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(columns)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header, want %s", ErrSchemaMismatch, strings.Join(columns, ","))
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, want := range columns {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaMismatch, i, header[i], want)
		}
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return records, nil
}

func rowToConcept(name, kind, signature, origin, file, line string) (Concept, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Concept{}, err
	}

	lineNo := 0
	if s := strings.TrimSpace(line); s != "" {
		lineNo, err = strconv.Atoi(s)
		if err != nil {
			return Concept{}, fmt.Errorf("bad line number %q: %w", line, err)
		}
	}

	c := Concept{
		Name:      strings.TrimSpace(name),
		Kind:      k,
		Signature: strings.TrimSpace(signature),
		Origin:    strings.TrimSpace(origin),
		File:      strings.TrimSpace(file),
		Line:      lineNo,
	}
	if err := c.Validate(); err != nil {
		return Concept{}, err
	}
	return c, nil
}

func splitPatternIDs(raw string) []string {
	parts := strings.Split(raw, PatternIDSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
