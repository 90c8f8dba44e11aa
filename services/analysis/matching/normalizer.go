// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matching

import (
	"strings"
	"unicode"

	"github.com/qpatterns/qpa/services/analysis/config"
)

// Normalizer canonicalizes identifiers for the NORMALIZED and FUZZY
// matchers.
//
// Description:
//
//	Normalize applies, in order: lowercase; strip leading/trailing
//	underscores (Python visibility and dunder markers); split on camelCase
//	and snake_case boundaries; drop stopword tokens; rejoin with the
//	configured separator. If stopword removal would leave no tokens, all
//	tokens are kept: a name made entirely of stopwords must not collapse
//	to the empty string and spuriously equal other collapsed names.
//
//	Normalize is pure and idempotent: Normalize(Normalize(x)) == Normalize(x).
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Normalizer struct {
	separator string
	stopwords map[string]struct{}
}

// NewNormalizer builds a normalizer from the normalizer section of the
// matcher configuration.
func NewNormalizer(cfg config.NormalizerConfig) *Normalizer {
	stop := make(map[string]struct{}, len(cfg.Stopwords))
	for _, w := range cfg.Stopwords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Normalizer{separator: cfg.Separator, stopwords: stop}
}

// Normalize canonicalizes one identifier.
func (n *Normalizer) Normalize(identifier string) string {
	tokens := n.tokens(identifier)
	if len(tokens) == 0 {
		return ""
	}

	kept := tokens[:0:0]
	for _, t := range tokens {
		if _, isStop := n.stopwords[t]; !isStop {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		kept = tokens
	}
	return strings.Join(kept, n.separator)
}

// tokens splits an identifier into lowercase tokens on camelCase and
// snake_case boundaries. Visibility underscores and dunder markers are
// stripped along the way because "_" is a split delimiter.
func (n *Normalizer) tokens(identifier string) []string {
	var tokens []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, strings.ToLower(string(current)))
			current = current[:0]
		}
	}

	runes := []rune(identifier)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			// Boundary when the previous rune is lower/digit (camelCase) or
			// when an acronym ends (HTTPServer → HTTP, Server).
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					flush()
				}
			}
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return tokens
}
