// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/qpatterns/qpa/services/analysis/matching"
	"github.com/qpatterns/qpa/services/analysis/workflow"
)

type analyzeFlags struct {
	catalog       string
	knowledgeBase map[string]string
	corpora       map[string]string
	outputDir     string
	matcherConfig string

	embedURL   string
	embedModel string
	noSemantic bool
	cacheDir   string

	workers     int
	metricsAddr string
}

func newAnalyzeCmd() *cobra.Command {
	flags := &analyzeFlags{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the full matching pipeline and export report tables",
		Long: `Loads the pattern catalog and per-framework knowledge bases, matches every
target project's candidate corpus against them with the layered matcher
chain (exact, normalized, fuzzy, semantic), and writes the match table and
derived report tables to the output directory.`,
		Example: `  qpa analyze \
    --catalog data/quantum_patterns.json \
    --kb qiskit=data/kb/qiskit.csv --kb pennylane=data/kb/pennylane.csv \
    --corpus myproject=data/corpora/myproject.csv \
    --out data/report`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.catalog, "catalog", "", "pattern catalog JSON dump (required)")
	cmd.Flags().StringToStringVar(&flags.knowledgeBase, "kb", nil, "framework=path knowledge-base CSV (repeatable, required)")
	cmd.Flags().StringToStringVar(&flags.corpora, "corpus", nil, "project=path candidate corpus CSV (repeatable, required)")
	cmd.Flags().StringVar(&flags.outputDir, "out", "report", "output directory for report tables")
	cmd.Flags().StringVar(&flags.matcherConfig, "matcher-config", "", "YAML file overriding the embedded matcher defaults")
	cmd.Flags().StringVar(&flags.embedURL, "embed-url", "", "embedding service URL (default: EMBEDDING_SERVICE_URL or local Ollama)")
	cmd.Flags().StringVar(&flags.embedModel, "embed-model", "", "embedding model name (default: EMBEDDING_MODEL)")
	cmd.Flags().BoolVar(&flags.noSemantic, "no-semantic", false, "disable the semantic matcher entirely")
	cmd.Flags().StringVar(&flags.cacheDir, "cache-dir", "", "directory for the embedding vector cache (empty: in-memory only)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "parallel candidate evaluations (0: GOMAXPROCS)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")

	_ = cmd.MarkFlagRequired("catalog")
	_ = cmd.MarkFlagRequired("kb")
	_ = cmd.MarkFlagRequired("corpus")

	return cmd
}

func runAnalyze(ctx context.Context, flags *analyzeFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	if flags.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: flags.metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	cfg := workflow.Config{
		CatalogPath:       flags.catalog,
		KnowledgeBases:    flags.knowledgeBase,
		Corpora:           flags.corpora,
		OutputDir:         flags.outputDir,
		MatcherConfigPath: flags.matcherConfig,
		Workers:           flags.workers,
		Logger:            logger,
	}

	if !flags.noSemantic {
		cfg.Embedder = matching.NewHTTPEmbedder(flags.embedURL, flags.embedModel)
		if flags.cacheDir != "" {
			store, err := matching.OpenBadgerVectorStore(flags.cacheDir, logger)
			if err != nil {
				return fmt.Errorf("opening vector cache: %w", err)
			}
			defer func() { _ = store.Close() }()
			cfg.VectorStore = store
		}
	}

	result, err := workflow.Run(ctx, cfg)
	if err != nil {
		if workflow.IsInputError(err) {
			return fmt.Errorf("fatal input error: %w", err)
		}
		return err
	}

	fmt.Printf("run %s: %d surviving matches, %d degraded pairs\n",
		result.RunID, result.Table.Len(), result.Stats.DegradedPairs)
	fmt.Printf("summary: %s\n", result.SummaryPath)
	return nil
}
