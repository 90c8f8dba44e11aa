// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package atlas

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	in := `[
		{"id": "P-17", "name": "Quantum Gate", "aliases": ["Gate"], "intent": "Apply a unitary."},
		{"id": "P-2", "name": "Amplitude Amplification"}
	]`

	cat, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Len())

	p, ok := cat.Get("P-17")
	require.True(t, ok)
	assert.Equal(t, "Quantum Gate", p.Name)
	assert.Equal(t, []string{"Gate"}, p.Aliases)

	_, ok = cat.Get("P-999")
	assert.False(t, ok)

	// Order is preserved from the dump.
	patterns := cat.Patterns()
	assert.Equal(t, "P-17", patterns[0].ID)
	assert.Equal(t, "P-2", patterns[1].ID)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"not": "an array"}`))
	assert.ErrorIs(t, err, ErrCatalogMalformed)
}

func TestNewCatalog_Validation(t *testing.T) {
	_, err := NewCatalog(nil)
	assert.ErrorIs(t, err, ErrCatalogEmpty)

	_, err = NewCatalog([]Pattern{{Name: "No ID"}})
	assert.ErrorIs(t, err, ErrCatalogMalformed)

	_, err = NewCatalog([]Pattern{{ID: "P-1"}})
	assert.ErrorIs(t, err, ErrCatalogMalformed)

	_, err = NewCatalog([]Pattern{
		{ID: "P-1", Name: "First"},
		{ID: "P-1", Name: "Duplicate"},
	})
	assert.ErrorIs(t, err, ErrCatalogMalformed)
}

func TestRequire(t *testing.T) {
	cat, err := NewCatalog([]Pattern{{ID: "P-1", Name: "Oracle"}})
	require.NoError(t, err)

	p, err := cat.Require("P-1")
	require.NoError(t, err)
	assert.Equal(t, "Oracle", p.Name)

	_, err = cat.Require("P-404")
	assert.ErrorIs(t, err, ErrUnknownPattern)
}
