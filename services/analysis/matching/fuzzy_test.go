// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matching

import (
	"math"
	"testing"
)

func TestLevenshteinDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"qgate", "qgato", 1},
		{"hadamard", "hadamrd", 1},
	}
	for _, c := range cases {
		if got := levenshteinDistance(c.a, c.b); got != c.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestSimilarityRatio(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "abc", 1.0},
		{"abc", "xyz", 0.0},
		{"qgate", "qgato", 0.8},
		{"abcdefghij", "abcdefghix", 0.9},
	}
	for _, c := range cases {
		got := similarityRatio(c.a, c.b)
		if math.Abs(got-c.want) > 1e-12 {
			t.Errorf("similarityRatio(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestSimilarityRatio_Symmetric(t *testing.T) {
	if a, b := similarityRatio("grover", "groover"), similarityRatio("groover", "grover"); a != b {
		t.Errorf("ratio not symmetric: %v vs %v", a, b)
	}
}
