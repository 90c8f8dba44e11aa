// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matching

import (
	"testing"
)

func TestAggregate_KeepsBestPerSlot(t *testing.T) {
	model := defaultModel(t)

	cand := candidate("apply_cnot", "proj")
	src := kbEntry("CNOTGate", "qlib", "P-17")

	raw := []Record{
		{Candidate: &cand, PatternID: "P-17", Method: MethodSemantic, RawScore: 0.99, Confidence: 0.74, Source: &src},
		{Candidate: &cand, PatternID: "P-17", Method: MethodFuzzy, RawScore: 0.81, Confidence: 0.52, Source: &src},
	}

	out := Aggregate(model, raw)
	if len(out) != 1 {
		t.Fatalf("aggregated records = %d, want 1", len(out))
	}
	if out[0].Method != MethodFuzzy {
		t.Errorf("survivor = %s, want FUZZY over higher-confidence SEMANTIC", out[0].Method)
	}
}

func TestAggregate_TieKeepsEarliest(t *testing.T) {
	model := defaultModel(t)

	cand := candidate("apply_cnot", "proj")
	first := kbEntry("CNOTGate", "qlib", "P-17")
	second := kbEntry("cnot_gate", "otherlib", "P-17")

	// Equal method and confidence: the incumbent must survive.
	raw := []Record{
		{Candidate: &cand, PatternID: "P-17", Method: MethodFuzzy, RawScore: 0.85, Confidence: 0.59, Source: &first},
		{Candidate: &cand, PatternID: "P-17", Method: MethodFuzzy, RawScore: 0.85, Confidence: 0.59, Source: &second},
	}

	out := Aggregate(model, raw)
	if len(out) != 1 {
		t.Fatalf("aggregated records = %d, want 1", len(out))
	}
	if out[0].Source != &first {
		t.Error("tie must keep the earliest-encountered record")
	}
}

func TestAggregate_PreservesFirstAppearanceOrder(t *testing.T) {
	model := defaultModel(t)

	a := candidate("alpha", "proj")
	b := candidate("beta", "proj")
	src := kbEntry("CNOTGate", "qlib", "P-17")

	raw := []Record{
		{Candidate: &a, PatternID: "P-1", Method: MethodFuzzy, RawScore: 0.9, Confidence: 0.67, Source: &src},
		{Candidate: &b, PatternID: "P-2", Method: MethodExact, RawScore: 1.0, Confidence: 1.0, Source: &src},
		{Candidate: &a, PatternID: "P-3", Method: MethodExact, RawScore: 1.0, Confidence: 1.0, Source: &src},
		// A late, stronger record for an early slot must upgrade in place,
		// not move the slot to the end.
		{Candidate: &a, PatternID: "P-1", Method: MethodExact, RawScore: 1.0, Confidence: 1.0, Source: &src},
	}

	out := Aggregate(model, raw)
	if len(out) != 3 {
		t.Fatalf("aggregated records = %d, want 3", len(out))
	}

	wantOrder := []struct {
		name, pattern string
	}{
		{"alpha", "P-1"},
		{"beta", "P-2"},
		{"alpha", "P-3"},
	}
	for i, want := range wantOrder {
		if out[i].Candidate.Name != want.name || out[i].PatternID != want.pattern {
			t.Errorf("out[%d] = (%s, %s), want (%s, %s)",
				i, out[i].Candidate.Name, out[i].PatternID, want.name, want.pattern)
		}
	}
	if out[0].Method != MethodExact {
		t.Errorf("out[0] method = %s, want upgraded EXACT", out[0].Method)
	}
}

func TestAggregate_Empty(t *testing.T) {
	model := defaultModel(t)
	if out := Aggregate(model, nil); len(out) != 0 {
		t.Errorf("Aggregate(nil) = %d records, want 0", len(out))
	}
}
