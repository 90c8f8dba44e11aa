// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMatcherConfig_EmbeddedDefaults(t *testing.T) {
	cfg, err := LoadMatcherConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, SelectionMethodPriority, cfg.SelectionPolicy)
	assert.Equal(t, []string{"exact", "normalized", "fuzzy", "semantic"}, cfg.MethodPriority)
	assert.Equal(t, 0.9, cfg.NormalizedConfidence)

	assert.Equal(t, 0.80, cfg.Fuzzy.Threshold)
	assert.Equal(t, 0.50, cfg.Fuzzy.ConfidenceFloor)
	assert.Equal(t, 0.85, cfg.Fuzzy.ConfidenceCeiling)

	assert.Equal(t, 0.75, cfg.Semantic.Threshold)
	assert.Equal(t, 0.40, cfg.Semantic.ConfidenceFloor)
	assert.Equal(t, 0.75, cfg.Semantic.ConfidenceCeiling)

	assert.Empty(t, cfg.Normalizer.Separator)
	assert.Contains(t, cfg.Normalizer.Stopwords, "get")
	assert.Contains(t, cfg.Normalizer.Stopwords, "set")

	// Cached: a second load returns the same instance.
	again, err := LoadMatcherConfig()
	require.NoError(t, err)
	assert.Same(t, cfg, again)
}

func TestLoadMatcherConfigFile_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
selection_policy: confidence
method_priority: [EXACT, NORMALIZED, FUZZY, SEMANTIC]
normalized_confidence: 0.95
fuzzy:
  threshold: 0.70
  confidence_floor: 0.40
  confidence_ceiling: 0.80
semantic:
  threshold: 0.60
  confidence_floor: 0.30
  confidence_ceiling: 0.70
normalizer:
  separator: ""
  stopwords: [get]
`), 0o644))

	cfg, err := LoadMatcherConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, SelectionConfidence, cfg.SelectionPolicy)
	assert.Equal(t, 0.95, cfg.NormalizedConfidence)
	assert.Equal(t, 0.70, cfg.Fuzzy.Threshold)
}

func TestLoadMatcherConfigFile_Missing(t *testing.T) {
	_, err := LoadMatcherConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestMatcherConfig_Validate(t *testing.T) {
	valid := func() MatcherConfig {
		return MatcherConfig{
			SelectionPolicy:      SelectionMethodPriority,
			MethodPriority:       []string{"EXACT", "NORMALIZED", "FUZZY", "SEMANTIC"},
			NormalizedConfidence: 0.9,
			Fuzzy:                BandConfig{Threshold: 0.8, ConfidenceFloor: 0.5, ConfidenceCeiling: 0.85},
			Semantic:             BandConfig{Threshold: 0.75, ConfidenceFloor: 0.4, ConfidenceCeiling: 0.75},
		}
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.SelectionPolicy = "reliability"
	assert.Error(t, cfg.Validate(), "unknown selection policy")

	cfg = valid()
	cfg.MethodPriority = nil
	assert.Error(t, cfg.Validate(), "empty priority list")

	cfg = valid()
	cfg.NormalizedConfidence = 1.5
	assert.Error(t, cfg.Validate(), "normalized confidence above 1")

	cfg = valid()
	cfg.Fuzzy.Threshold = 0
	assert.Error(t, cfg.Validate(), "zero fuzzy threshold")

	cfg = valid()
	cfg.Semantic.ConfidenceCeiling = 0.2
	assert.Error(t, cfg.Validate(), "ceiling below floor")
}
