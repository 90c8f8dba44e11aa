// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matching

import (
	"testing"

	"github.com/qpatterns/qpa/services/analysis/config"
)

func defaultNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	cfg, err := config.LoadMatcherConfig()
	if err != nil {
		t.Fatalf("loading default config: %v", err)
	}
	return NewNormalizer(cfg.Normalizer)
}

func TestNormalize_SnakeAndCamelCollapse(t *testing.T) {
	n := defaultNormalizer(t)

	// The classification workflow relies on get_state_vector and
	// StateVector collapsing to the same canonical form.
	if got := n.Normalize("get_state_vector"); got != "statevector" {
		t.Errorf("get_state_vector → %q, want statevector", got)
	}
	if got := n.Normalize("StateVector"); got != "statevector" {
		t.Errorf("StateVector → %q, want statevector", got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := defaultNormalizer(t)

	inputs := []string{
		"get_state_vector",
		"StateVector",
		"CNOTGate",
		"__init__",
		"_private_helper",
		"HTTPServerHandler",
		"apply_grover_operator",
		"x",
		"",
	}
	for _, in := range inputs {
		once := n.Normalize(in)
		twice := n.Normalize(once)
		if once != twice {
			t.Errorf("Normalize(%q): not idempotent: %q != %q", in, once, twice)
		}
	}
}

func TestNormalize_CaseInsensitiveStable(t *testing.T) {
	n := defaultNormalizer(t)

	pairs := [][2]string{
		{"CNOTGate", "cnotGate"},
		{"QuantumCircuit", "quantumCircuit"},
	}
	for _, p := range pairs {
		if a, b := n.Normalize(p[0]), n.Normalize(p[1]); a != b {
			t.Errorf("Normalize(%q)=%q vs Normalize(%q)=%q, want equal", p[0], a, p[1], b)
		}
	}
}

func TestNormalize_StripsUnderscoreMarkers(t *testing.T) {
	n := defaultNormalizer(t)

	if got := n.Normalize("__measure__"); got != "measure" {
		t.Errorf("__measure__ → %q, want measure", got)
	}
	if got := n.Normalize("_entangle"); got != "entangle" {
		t.Errorf("_entangle → %q, want entangle", got)
	}
}

func TestNormalize_AcronymBoundary(t *testing.T) {
	n := defaultNormalizer(t)

	// Acronym followed by a word splits after the acronym.
	if got := n.Normalize("QFTCircuit"); got != "qftcircuit" {
		t.Errorf("QFTCircuit → %q, want qftcircuit", got)
	}
}

func TestNormalize_AllStopwordsKeepsTokens(t *testing.T) {
	n := defaultNormalizer(t)

	// A name made entirely of stopwords must not collapse to "", which
	// would make unrelated all-stopword names spuriously equal.
	if got := n.Normalize("get_set"); got == "" {
		t.Error("get_set normalized to empty string")
	}
}

func TestNormalize_CustomSeparator(t *testing.T) {
	n := NewNormalizer(config.NormalizerConfig{
		Separator: "_",
		Stopwords: []string{"get"},
	})
	if got := n.Normalize("getStateVector"); got != "state_vector" {
		t.Errorf("getStateVector → %q, want state_vector", got)
	}
	// Idempotence must hold with a non-empty separator too.
	if got := n.Normalize("state_vector"); got != "state_vector" {
		t.Errorf("state_vector → %q, want state_vector", got)
	}
}

func TestNormalize_Empty(t *testing.T) {
	n := defaultNormalizer(t)
	if got := n.Normalize(""); got != "" {
		t.Errorf("Normalize(\"\") = %q, want empty", got)
	}
	if got := n.Normalize("___"); got != "" {
		t.Errorf("Normalize(\"___\") = %q, want empty", got)
	}
}
