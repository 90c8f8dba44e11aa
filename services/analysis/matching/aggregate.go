// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matching

// Aggregate collapses raw matches to one best record per (candidate,
// pattern) pair.
//
// Description:
//
//	Records are grouped by (candidate identity, pattern ID). Within each
//	group the winner is chosen by the model's selection policy (method
//	priority first under the default configuration, confidence first when
//	so configured), with equal records resolved in favor of the earliest
//	encountered (stable selection: a later record replaces the incumbent
//	only on a strict win). Output order is by first appearance of the
//	candidate in the input, then by first appearance of the pattern for
//	that candidate, so identical inputs produce identical outputs across
//	runs and across degrees of matcher parallelism.
//
// Inputs:
//
//	model - Confidence model carrying the selection policy. Must not be nil.
//	raw   - Raw match records from the chain, in candidate order.
//
// Outputs:
//
//	[]Record - At most one record per (candidate, pattern) pair.
func Aggregate(model *ConfidenceModel, raw []Record) []Record {
	type slot struct {
		candidateKey string
		patternID    string
	}

	best := make(map[slot]int, len(raw)) // slot → index into out
	var out []Record

	for _, r := range raw {
		s := slot{candidateKey: r.Candidate.Key(), patternID: r.PatternID}
		if idx, seen := best[s]; seen {
			if model.Better(&r, &out[idx]) {
				out[idx] = r
			}
			continue
		}
		best[s] = len(out)
		out = append(out, r)
	}
	return out
}
