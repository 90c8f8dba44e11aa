// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Matcher Configuration
// =============================================================================

//go:embed matcher_defaults.yaml
var defaultMatcherYAML []byte

// =============================================================================
// Matcher Configuration Types
// =============================================================================

// SelectionPolicy controls how the aggregator ranks competing matches for
// the same (candidate, pattern) pair.
type SelectionPolicy string

const (
	// SelectionMethodPriority ranks by match-method reliability first, then
	// by normalized confidence. Under this policy a SEMANTIC match never
	// outranks a FUZZY match for the same pair, regardless of raw scores.
	SelectionMethodPriority SelectionPolicy = "method-priority"

	// SelectionConfidence ranks by normalized confidence first and uses
	// method priority only to break exact ties.
	SelectionConfidence SelectionPolicy = "confidence"
)

// BandConfig configures a threshold-gated matcher (fuzzy or semantic) and
// the output sub-range its raw scores map into.
//
// Description:
//
//	Raw scores in [Threshold, 1.0] map linearly into
//	[ConfidenceFloor, ConfidenceCeiling]. The threshold is inclusive: a raw
//	score exactly equal to Threshold counts as a match.
type BandConfig struct {
	Threshold         float64 `yaml:"threshold"`
	ConfidenceFloor   float64 `yaml:"confidence_floor"`
	ConfidenceCeiling float64 `yaml:"confidence_ceiling"`
}

// NormalizerConfig configures identifier canonicalization.
type NormalizerConfig struct {
	// Separator rejoins tokens after splitting. Default is the empty string.
	Separator string `yaml:"separator"`

	// Stopwords are tokens removed during normalization. If removal would
	// leave nothing, the normalizer keeps all tokens instead.
	Stopwords []string `yaml:"stopwords"`
}

// MatcherConfig is the full configuration for the matcher chain, the
// confidence model, and the aggregator's selection policy.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type MatcherConfig struct {
	SelectionPolicy SelectionPolicy `yaml:"selection_policy"`

	// MethodPriority lists match methods from most to least reliable.
	// Used for tie-breaking (and for primary ranking under the
	// method-priority selection policy).
	MethodPriority []string `yaml:"method_priority"`

	// NormalizedConfidence is the fixed confidence assigned to NORMALIZED
	// matches.
	NormalizedConfidence float64 `yaml:"normalized_confidence"`

	Fuzzy      BandConfig       `yaml:"fuzzy"`
	Semantic   BandConfig       `yaml:"semantic"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
}

// =============================================================================
// Loading
// =============================================================================

var (
	cachedMatcherConfig *MatcherConfig
	matcherConfigOnce   sync.Once
	matcherConfigErr    error
)

// LoadMatcherConfig loads and caches the embedded default matcher
// configuration. Returns the cached result on subsequent calls.
//
// Outputs:
//
//	*MatcherConfig - The loaded configuration. Never nil on success.
//	error          - Non-nil if YAML parsing or validation fails.
//
// Thread Safety: Safe for concurrent use (uses sync.Once internally).
func LoadMatcherConfig() (*MatcherConfig, error) {
	matcherConfigOnce.Do(func() {
		cfg, err := parseMatcherConfig(defaultMatcherYAML)
		if err != nil {
			matcherConfigErr = fmt.Errorf("parsing matcher_defaults.yaml: %w", err)
			return
		}
		cachedMatcherConfig = cfg
		slog.Debug("matcher configuration loaded",
			slog.String("selection_policy", string(cfg.SelectionPolicy)),
			slog.Float64("fuzzy_threshold", cfg.Fuzzy.Threshold),
			slog.Float64("semantic_threshold", cfg.Semantic.Threshold),
		)
	})
	return cachedMatcherConfig, matcherConfigErr
}

// LoadMatcherConfigFile loads a matcher configuration from an override file.
// Unlike LoadMatcherConfig, the result is not cached: each call re-reads
// the file so experiments can re-tune without restarting.
//
// Inputs:
//
//	path - Path to a YAML file with the same schema as matcher_defaults.yaml.
//
// Outputs:
//
//	*MatcherConfig - The loaded configuration. Never nil on success.
//	error          - Non-nil if reading, parsing, or validation fails.
func LoadMatcherConfigFile(path string) (*MatcherConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading matcher config %s: %w", path, err)
	}
	cfg, err := parseMatcherConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing matcher config %s: %w", path, err)
	}
	return cfg, nil
}

// MustLoadMatcherConfig loads the embedded defaults or panics. The embedded
// configuration is part of the binary; failing to parse it is a build
// defect, not a runtime condition.
func MustLoadMatcherConfig() *MatcherConfig {
	cfg, err := LoadMatcherConfig()
	if err != nil {
		panic(err)
	}
	return cfg
}

func parseMatcherConfig(raw []byte) (*MatcherConfig, error) {
	var cfg MatcherConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks internal consistency of the configuration.
//
// Outputs:
//
//	error - Non-nil if any threshold or range is out of bounds, the
//	        selection policy is unknown, or the priority list is empty.
func (c *MatcherConfig) Validate() error {
	switch c.SelectionPolicy {
	case SelectionMethodPriority, SelectionConfidence:
	default:
		return fmt.Errorf("unknown selection_policy %q", c.SelectionPolicy)
	}
	if len(c.MethodPriority) == 0 {
		return fmt.Errorf("method_priority must not be empty")
	}
	if c.NormalizedConfidence <= 0 || c.NormalizedConfidence > 1 {
		return fmt.Errorf("normalized_confidence %.3f out of (0, 1]", c.NormalizedConfidence)
	}
	if err := c.Fuzzy.validate("fuzzy"); err != nil {
		return err
	}
	if err := c.Semantic.validate("semantic"); err != nil {
		return err
	}
	return nil
}

func (b BandConfig) validate(name string) error {
	if b.Threshold <= 0 || b.Threshold >= 1 {
		return fmt.Errorf("%s.threshold %.3f out of (0, 1)", name, b.Threshold)
	}
	if b.ConfidenceFloor < 0 || b.ConfidenceFloor > 1 {
		return fmt.Errorf("%s.confidence_floor %.3f out of [0, 1]", name, b.ConfidenceFloor)
	}
	if b.ConfidenceCeiling <= b.ConfidenceFloor || b.ConfidenceCeiling > 1 {
		return fmt.Errorf("%s.confidence_ceiling %.3f must be in (%.3f, 1]", name, b.ConfidenceCeiling, b.ConfidenceFloor)
	}
	return nil
}
