// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package atlas holds the pattern catalog: the static set of cataloged
// software design patterns that extracted concepts are matched against.
// The catalog is produced by the Pattern Atlas download stage (an external
// collaborator) as a JSON dump and is read-only for the duration of a run.
package atlas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Sentinel errors returned by catalog loading and validation.
var (
	// ErrCatalogEmpty indicates the catalog dump contained no patterns.
	ErrCatalogEmpty = errors.New("pattern catalog is empty")

	// ErrCatalogMalformed indicates the catalog dump failed to parse or
	// failed validation.
	ErrCatalogMalformed = errors.New("pattern catalog is malformed")

	// ErrUnknownPattern indicates a pattern ID that is not in the catalog.
	ErrUnknownPattern = errors.New("unknown pattern id")
)

// Pattern is a single cataloged design pattern.
//
// Description:
//
//	Mirrors the Pattern Atlas dump format: a stable ID, a display name, an
//	ordered list of aliases, and the intent/description prose. Immutable
//	once loaded.
type Pattern struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Intent      string   `json:"intent,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Catalog is the immutable set of patterns for a run.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Catalog struct {
	patterns []Pattern
	byID     map[string]*Pattern
}

// NewCatalog builds a catalog from a pattern list, preserving order.
//
// Outputs:
//
//	*Catalog - The constructed catalog. Never nil on success.
//	error    - ErrCatalogEmpty if patterns is empty, or ErrCatalogMalformed
//	           if any pattern is missing an ID or name, or an ID repeats.
func NewCatalog(patterns []Pattern) (*Catalog, error) {
	if len(patterns) == 0 {
		return nil, ErrCatalogEmpty
	}
	c := &Catalog{
		patterns: patterns,
		byID:     make(map[string]*Pattern, len(patterns)),
	}
	for i := range c.patterns {
		p := &c.patterns[i]
		if p.ID == "" {
			return nil, fmt.Errorf("%w: pattern at index %d has no id", ErrCatalogMalformed, i)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("%w: pattern %s has no name", ErrCatalogMalformed, p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate pattern id %s", ErrCatalogMalformed, p.ID)
		}
		c.byID[p.ID] = p
	}
	return c, nil
}

// Load reads a Pattern Atlas JSON dump from disk and builds a catalog.
//
// Inputs:
//
//	path - Path to a JSON file holding an array of pattern objects.
//
// Outputs:
//
//	*Catalog - The loaded catalog.
//	error    - Non-nil on read, parse, or validation failure. Parse and
//	           validation failures wrap ErrCatalogMalformed / ErrCatalogEmpty.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pattern catalog %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("pattern catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a Pattern Atlas JSON dump from a reader.
func Parse(r io.Reader) (*Catalog, error) {
	var patterns []Pattern
	dec := json.NewDecoder(r)
	if err := dec.Decode(&patterns); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogMalformed, err)
	}
	return NewCatalog(patterns)
}

// Get returns the pattern with the given ID.
//
// Outputs:
//
//	*Pattern - The pattern, or nil when not found.
//	bool     - True when the ID exists in the catalog.
func (c *Catalog) Get(id string) (*Pattern, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Require returns the pattern with the given ID or ErrUnknownPattern.
func (c *Catalog) Require(id string) (*Pattern, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPattern, id)
	}
	return p, nil
}

// Patterns returns the patterns in catalog order. Callers must not mutate
// the returned slice.
func (c *Catalog) Patterns() []Pattern {
	return c.patterns
}

// Len returns the number of patterns in the catalog.
func (c *Catalog) Len() int {
	return len(c.patterns)
}
