// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package workflow sequences one analysis run: load the pattern catalog
// and knowledge base, match each target project's candidate corpus, and
// export the reporting tables. Stages fail fast: a fatal input error
// aborts before any matching begins and names the stage and input.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/qpatterns/qpa/services/analysis/atlas"
	"github.com/qpatterns/qpa/services/analysis/concepts"
	"github.com/qpatterns/qpa/services/analysis/config"
	"github.com/qpatterns/qpa/services/analysis/matching"
	"github.com/qpatterns/qpa/services/analysis/report"
)

// StageError is a fatal input error, naming the stage and the input that
// was missing or malformed.
type StageError struct {
	Stage string
	Input string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: input %s: %v", e.Stage, e.Input, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Config describes one analysis run.
type Config struct {
	// CatalogPath is the Pattern Atlas JSON dump.
	CatalogPath string

	// KnowledgeBases maps framework name → classified knowledge-base CSV.
	KnowledgeBases map[string]string

	// Corpora maps target project identifier → candidate corpus CSV.
	Corpora map[string]string

	// OutputDir receives the report CSVs and the run summary.
	OutputDir string

	// MatcherConfigPath optionally overrides the embedded matcher defaults.
	MatcherConfigPath string

	// Embedder enables the semantic matcher. Nil runs exact/normalized/fuzzy only.
	Embedder matching.Embedder

	// VectorStore optionally persists knowledge-base vectors between runs.
	VectorStore matching.VectorStore

	// Workers bounds matcher parallelism. Zero uses GOMAXPROCS.
	Workers int

	Logger *slog.Logger
}

// Result summarizes a completed run.
type Result struct {
	RunID       string
	Table       *report.MatchTable
	Stats       matching.Stats
	ReportFiles []string
	SummaryPath string
}

// Run executes the full pipeline for one analysis run.
//
// Description:
//
//	Stages, in order: pattern catalog → knowledge-base consolidation →
//	chain construction and embedding warm-up → per-project candidate
//	loading and matching → aggregation → report export → run summary.
//	Projects are processed in sorted identifier order so output is
//	deterministic. A degraded semantic backend does not abort the run;
//	the degraded-pair count is carried into the summary.
//
// Outputs:
//
//	*Result - The run result. Never nil on success.
//	error   - A *StageError on fatal input problems, or a downstream
//	          export failure.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runID := uuid.NewString()
	startedAt := time.Now()
	logger.Info("analysis run starting",
		slog.String("run_id", runID),
		slog.Int("frameworks", len(cfg.KnowledgeBases)),
		slog.Int("projects", len(cfg.Corpora)),
	)

	// Stage: pattern catalog.
	catalog, err := stage(logger, "pattern-catalog", func() (*atlas.Catalog, error) {
		c, err := atlas.Load(cfg.CatalogPath)
		if err != nil {
			return nil, &StageError{Stage: "pattern-catalog", Input: cfg.CatalogPath, Err: err}
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	// Stage: knowledge-base consolidation.
	kb, err := stage(logger, "knowledge-base", func() ([]concepts.Concept, error) {
		rows, err := concepts.Consolidate(cfg.KnowledgeBases, logger)
		if err != nil {
			return nil, &StageError{Stage: "knowledge-base", Input: describePaths(cfg.KnowledgeBases), Err: err}
		}
		for i := range rows {
			for _, id := range rows[i].PatternIDs {
				if _, ok := catalog.Get(id); !ok {
					return nil, &StageError{
						Stage: "knowledge-base",
						Input: describePaths(cfg.KnowledgeBases),
						Err:   fmt.Errorf("entry %s: %w: %s", rows[i].Name, atlas.ErrUnknownPattern, id),
					}
				}
			}
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	// Stage: matcher chain construction and warm-up.
	matcherCfg, err := loadMatcherConfig(cfg.MatcherConfigPath)
	if err != nil {
		return nil, &StageError{Stage: "matcher-config", Input: cfg.MatcherConfigPath, Err: err}
	}
	chain, err := matching.NewChain(matcherCfg, kb,
		matching.WithEmbedder(cfg.Embedder),
		matching.WithVectorStore(cfg.VectorStore),
		matching.WithWorkers(cfg.Workers),
		matching.WithLogger(logger),
	)
	if err != nil {
		return nil, &StageError{Stage: "matcher-chain", Input: describePaths(cfg.KnowledgeBases), Err: err}
	}
	if err := chain.Warm(ctx); err != nil {
		// Warm-up failure is not fatal: affected pairs degrade at match time.
		logger.Warn("embedding warm-up failed, semantic matches will degrade",
			slog.String("error", err.Error()),
		)
	}

	// Stage: per-project matching.
	projects := make([]string, 0, len(cfg.Corpora))
	for p := range cfg.Corpora {
		projects = append(projects, p)
	}
	sort.Strings(projects)

	var allRaw []matching.Record
	totals := matching.Stats{ByMethod: make(map[matching.Method]int, 4), KnowledgeBase: len(kb)}
	for _, project := range projects {
		path := cfg.Corpora[project]
		candidates, err := concepts.LoadCorpus(path)
		if err != nil {
			return nil, &StageError{Stage: "candidate-corpus", Input: path, Err: err}
		}
		for i := range candidates {
			candidates[i].Origin = project
		}

		stageStart := time.Now()
		raw, stats, err := chain.MatchAll(ctx, candidates)
		if err != nil {
			return nil, fmt.Errorf("matching project %s: %w", project, err)
		}
		logger.Info("project matched",
			slog.String("project", project),
			slog.Int("candidates", stats.Candidates),
			slog.Int("raw_matches", stats.RawMatches),
			slog.Duration("duration", time.Since(stageStart)),
		)

		allRaw = append(allRaw, raw...)
		totals.Candidates += stats.Candidates
		totals.RawMatches += stats.RawMatches
		totals.DegradedPairs += stats.DegradedPairs
		totals.Duration += stats.Duration
		for m, n := range stats.ByMethod {
			totals.ByMethod[m] += n
		}
	}

	// Stage: aggregation and reporting.
	survivors := matching.Aggregate(chain.Model(), allRaw)
	table, err := report.BuildMatchTable(survivors, catalog)
	if err != nil {
		return nil, fmt.Errorf("building match table: %w", err)
	}

	files, err := report.ExportAll(cfg.OutputDir, table)
	if err != nil {
		return nil, fmt.Errorf("exporting reports: %w", err)
	}

	summary := &report.Summary{
		RunID:       runID,
		StartedAt:   startedAt,
		Patterns:    catalog.Len(),
		Frameworks:  sortedKeys(cfg.KnowledgeBases),
		Projects:    projects,
		Stats:       totals,
		Survivors:   table.Len(),
		ReportFiles: files,
	}
	summaryPath := filepath.Join(cfg.OutputDir, "run_summary.md")
	if err := os.WriteFile(summaryPath, []byte(summary.RenderMarkdown()), 0o644); err != nil {
		return nil, fmt.Errorf("writing run summary: %w", err)
	}

	logger.Info("analysis run complete",
		slog.String("run_id", runID),
		slog.Int("survivors", table.Len()),
		slog.Int("degraded_pairs", totals.DegradedPairs),
		slog.Duration("elapsed", time.Since(startedAt)),
	)

	return &Result{
		RunID:       runID,
		Table:       table,
		Stats:       totals,
		ReportFiles: files,
		SummaryPath: summaryPath,
	}, nil
}

// stage runs one named pipeline stage with consistent timing and logging.
func stage[T any](logger *slog.Logger, name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	if err != nil {
		logger.Error("stage failed",
			slog.String("stage", name),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return out, err
	}
	logger.Info("stage complete",
		slog.String("stage", name),
		slog.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func loadMatcherConfig(path string) (*config.MatcherConfig, error) {
	if path == "" {
		return config.LoadMatcherConfig()
	}
	return config.LoadMatcherConfigFile(path)
}

func describePaths(files map[string]string) string {
	if len(files) == 0 {
		return "(none)"
	}
	keys := sortedKeys(files)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, files[k])
	}
	sort.Strings(parts)
	return parts[0] + suffixIfMore(len(parts))
}

func suffixIfMore(n int) string {
	if n <= 1 {
		return ""
	}
	return fmt.Sprintf(" (+%d more)", n-1)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Errors re-exported for callers that branch on fatal input classes.
var (
	ErrCatalogEmpty       = atlas.ErrCatalogEmpty
	ErrKnowledgeBaseEmpty = concepts.ErrKnowledgeBaseEmpty
	ErrSchemaMismatch     = concepts.ErrSchemaMismatch
)

// IsInputError reports whether err is a fatal input error (a StageError).
func IsInputError(err error) bool {
	var se *StageError
	return errors.As(err, &se)
}
