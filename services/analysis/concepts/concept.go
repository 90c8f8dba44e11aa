// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package concepts defines the concept record model shared by the
// knowledge base (classified rows) and candidate corpora (unclassified
// rows), and the CSV loaders that materialize them.
package concepts

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies the syntactic construct a concept was extracted from.
type Kind string

const (
	KindFunction Kind = "function"
	KindClass    Kind = "class"
	KindMethod   Kind = "method"
)

// ErrInvalidKind indicates a kind value outside function/class/method.
var ErrInvalidKind = errors.New("invalid concept kind")

// ParseKind parses a kind column value, case-insensitively. The original
// extraction stage emits capitalized values ("Function", "Class").
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindFunction:
		return KindFunction, nil
	case KindClass:
		return KindClass, nil
	case KindMethod:
		return KindMethod, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Concept is a named source-code construct extracted from a framework or a
// target project.
//
// Description:
//
//	Knowledge-base concepts carry one or more PatternIDs (the manual
//	classification) and Origin names the source framework. Candidate
//	concepts carry no PatternIDs and Origin names the target project.
//	File and Line are advisory provenance only.
//
// Ownership:
//
//	Concepts are loaded once per run and must not be mutated afterwards;
//	the matcher and aggregator hold references into the loaded slices.
type Concept struct {
	Name      string
	Kind      Kind
	Signature string

	// Origin is the framework name for knowledge-base rows or the project
	// identifier for candidate rows.
	Origin string

	// File and Line locate the construct in its source tree. Advisory only.
	File string
	Line int

	// PatternIDs is the manual classification for knowledge-base rows.
	// Empty for candidates.
	PatternIDs []string
}

// Key returns a stable identity for the concept within a run, used for
// grouping during aggregation and as the row key in reports.
func (c *Concept) Key() string {
	return c.Origin + "::" + c.File + "::" + c.Name
}

// IsClassified reports whether the concept carries a manual classification.
func (c *Concept) IsClassified() bool {
	return len(c.PatternIDs) > 0
}

// Validate checks the fields every concept row must carry.
func (c *Concept) Validate() error {
	if c.Name == "" {
		return errors.New("concept has no name")
	}
	if c.Origin == "" {
		return fmt.Errorf("concept %s has no origin", c.Name)
	}
	switch c.Kind {
	case KindFunction, KindClass, KindMethod:
	default:
		return fmt.Errorf("concept %s: %w: %q", c.Name, ErrInvalidKind, c.Kind)
	}
	return nil
}
