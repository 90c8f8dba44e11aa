// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/qpatterns/qpa/services/analysis/matching"
)

// Summary holds the run-level facts rendered into the markdown summary.
type Summary struct {
	RunID       string
	StartedAt   time.Time
	Patterns    int
	Frameworks  []string
	Projects    []string
	Stats       matching.Stats
	Survivors   int
	ReportFiles []string
}

// RenderMarkdown renders the run summary as a markdown document.
//
// Description:
//
//	A degraded run (failed semantic lookups) still completes; the summary
//	calls out the degraded-pair count so readers know the semantic method
//	was partial.
func (s *Summary) RenderMarkdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Pattern Analysis Run %s\n\n", s.RunID)
	fmt.Fprintf(&b, "Started: %s\n\n", s.StartedAt.UTC().Format(time.RFC3339))

	b.WriteString("## Inputs\n\n")
	fmt.Fprintf(&b, "- Patterns in catalog: %d\n", s.Patterns)
	fmt.Fprintf(&b, "- Knowledge-base frameworks: %s (%d entries)\n",
		strings.Join(s.Frameworks, ", "), s.Stats.KnowledgeBase)
	fmt.Fprintf(&b, "- Target projects: %s (%d candidates)\n\n",
		strings.Join(s.Projects, ", "), s.Stats.Candidates)

	b.WriteString("## Results\n\n")
	fmt.Fprintf(&b, "- Raw matches: %d\n", s.Stats.RawMatches)
	for _, method := range []matching.Method{
		matching.MethodExact, matching.MethodNormalized, matching.MethodFuzzy, matching.MethodSemantic,
	} {
		if n := s.Stats.ByMethod[method]; n > 0 {
			fmt.Fprintf(&b, "  - %s: %d\n", method, n)
		}
	}
	fmt.Fprintf(&b, "- Surviving matches after aggregation: %d\n", s.Survivors)
	if s.Stats.DegradedPairs > 0 {
		fmt.Fprintf(&b, "- Degraded pairs (semantic lookup failed): %d\n", s.Stats.DegradedPairs)
	}
	fmt.Fprintf(&b, "- Match run duration: %s\n", s.Stats.Duration.Round(time.Millisecond))

	if len(s.ReportFiles) > 0 {
		b.WriteString("\n## Report Files\n\n")
		for _, f := range s.ReportFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}
