// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/qpatterns/qpa/services/analysis/concepts"
	"github.com/qpatterns/qpa/services/analysis/config"
)

var chainTracer = otel.Tracer("qpa.analysis.matching")

// floatTolerance absorbs binary-representation error in threshold
// comparisons so that a similarity ratio of exactly 0.80 counts as a match
// against a 0.80 threshold (the boundary is inclusive).
const floatTolerance = 1e-9

// ErrEmptyKnowledgeBase indicates a chain constructed with no knowledge
// base. This is a fatal input error, since every candidate would trivially yield
// zero matches.
var ErrEmptyKnowledgeBase = errors.New("matcher chain requires a non-empty knowledge base")

// Stats summarizes one matcher chain run.
type Stats struct {
	Candidates    int
	KnowledgeBase int
	RawMatches    int
	ByMethod      map[Method]int

	// DegradedPairs counts (candidate, kb entry) pairs whose semantic
	// evaluation failed and degraded to "no semantic match". The other
	// methods for those pairs are unaffected.
	DegradedPairs int

	Duration time.Duration
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithEmbedder enables the semantic matcher with the given backend. Without
// an embedder the chain runs exact, normalized, and fuzzy only.
func WithEmbedder(e Embedder) ChainOption {
	return func(c *Chain) {
		if e != nil {
			c.embed = NewEmbedCache(e)
		}
	}
}

// WithVectorStore enables persistence of knowledge-base vectors between
// runs. Nil disables persistence (in-memory-only mode).
func WithVectorStore(s VectorStore) ChainOption {
	return func(c *Chain) { c.store = s }
}

// WithWorkers bounds the number of candidates evaluated in parallel.
// Values below 1 fall back to GOMAXPROCS.
func WithWorkers(n int) ChainOption {
	return func(c *Chain) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the chain logger.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// Chain runs the layered match strategy over candidates × knowledge base.
//
// Description:
//
//	Per candidate, every knowledge-base entry is evaluated with all four
//	methods in a fixed order: EXACT, NORMALIZED, FUZZY, SEMANTIC. An exact
//	hit does not short-circuit the others: the extra records are audit
//	evidence and the aggregator keeps only the best per (candidate,
//	pattern) pair. A knowledge-base entry classified under several
//	patterns emits one record per pattern ID (expand-then-compete).
//
//	The knowledge base, its precomputed normalized names, and its
//	embedding documents are immutable after construction, so candidate
//	evaluation is read-only with respect to shared state and parallelizes
//	freely.
//
// Thread Safety: Safe for concurrent use after construction; MatchAll may
// be called concurrently, though a single run already saturates the
// configured worker count.
type Chain struct {
	cfg        *config.MatcherConfig
	model      *ConfidenceModel
	normalizer *Normalizer

	kb      []concepts.Concept
	kbNorm  []string // normalized names, index-aligned with kb
	kbDocs  []string // embedding documents, index-aligned with kb
	kbEmpty bool

	embed  *EmbedCache // nil disables the semantic matcher
	store  VectorStore
	warmed atomic.Bool

	workers int
	logger  *slog.Logger
}

// NewChain builds a matcher chain over an immutable knowledge base.
//
// Inputs:
//
//	cfg  - Matcher configuration. Must not be nil.
//	kb   - Classified knowledge-base concepts. Must be non-empty; every
//	       entry must carry at least one pattern ID.
//	opts - Optional embedder, vector store, worker bound, logger.
//
// Outputs:
//
//	*Chain - The constructed chain. Never nil on success.
//	error  - ErrEmptyKnowledgeBase, a config error, or an unclassified
//	         knowledge-base entry.
func NewChain(cfg *config.MatcherConfig, kb []concepts.Concept, opts ...ChainOption) (*Chain, error) {
	if cfg == nil {
		return nil, fmt.Errorf("matcher chain requires a configuration")
	}
	if len(kb) == 0 {
		return nil, ErrEmptyKnowledgeBase
	}

	model, err := NewConfidenceModel(cfg)
	if err != nil {
		return nil, err
	}

	c := &Chain{
		cfg:        cfg,
		model:      model,
		normalizer: NewNormalizer(cfg.Normalizer),
		kb:         kb,
		workers:    runtime.GOMAXPROCS(0),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.kbNorm = make([]string, len(kb))
	c.kbDocs = make([]string, len(kb))
	for i := range kb {
		if !kb[i].IsClassified() {
			return nil, fmt.Errorf("knowledge-base entry %s carries no pattern ids", kb[i].Name)
		}
		c.kbNorm[i] = c.normalizer.Normalize(kb[i].Name)
		c.kbDocs[i] = embeddingDoc(&kb[i])
	}
	return c, nil
}

// Model exposes the chain's confidence model, which the aggregator shares.
func (c *Chain) Model() *ConfidenceModel { return c.model }

// Warm pre-computes embedding vectors for every knowledge-base entry.
//
// Description:
//
//	Checks the vector store for a persisted set keyed by the corpus hash
//	first; on a hit the cache is seeded and no backend call is made. On a
//	miss, entries are embedded in parallel (bounded by the worker count)
//	and the resulting vectors persisted. Individual embed failures are
//	warnings; the affected pairs will degrade at match time.
//
//	A no-op when the semantic matcher is disabled.
func (c *Chain) Warm(ctx context.Context) error {
	if c.embed == nil || c.warmed.Load() {
		return nil
	}

	corpusHash := ComputeCorpusHash(c.kbDocs, c.embed.Model())
	if c.store != nil {
		cached, err := c.store.LoadVectors(ctx, corpusHash)
		if err != nil {
			c.logger.Warn("vector store load failed, warming from backend",
				slog.String("error", err.Error()),
			)
		} else if len(cached) > 0 {
			c.embed.Seed(cached)
			c.warmed.Store(true)
			c.logger.Info("knowledge-base vectors restored from store",
				slog.Int("vector_count", len(cached)),
				slog.String("corpus_hash", shortHash(corpusHash)),
			)
			return nil
		}
	}

	c.logger.Info("warming knowledge-base embeddings",
		slog.Int("entry_count", len(c.kbDocs)),
		slog.String("model", c.embed.Model()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, doc := range c.kbDocs {
		g.Go(func() error {
			if _, err := c.embed.Embed(gctx, doc); err != nil {
				c.logger.Warn("failed to embed knowledge-base entry",
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("embedding warm-up: %w", err)
	}
	c.warmed.Store(true)

	if c.store != nil {
		if err := c.store.SaveVectors(ctx, corpusHash, c.embed.Snapshot()); err != nil {
			c.logger.Warn("failed to persist knowledge-base vectors",
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// MatchAll evaluates every candidate against the full knowledge base.
//
// Description:
//
//	Candidates are evaluated in parallel, but results are flattened in
//	candidate input order, so the output is deterministic and independent
//	of the degree of parallelism. A candidate with no match across all
//	methods contributes zero records, absence of evidence rather than an error.
//
// Inputs:
//
//	ctx        - Context for cancellation. Must not be nil.
//	candidates - Unclassified candidate concepts. Empty yields zero records.
//
// Outputs:
//
//	[]Record - Raw matches in candidate order, pre-aggregation.
//	Stats    - Run counters, including degraded semantic pairs.
//	error    - Non-nil only on context cancellation.
func (c *Chain) MatchAll(ctx context.Context, candidates []concepts.Concept) ([]Record, Stats, error) {
	start := time.Now()
	ctx, span := chainTracer.Start(ctx, "matching.Chain.MatchAll")
	span.SetAttributes(
		attribute.Int("candidate_count", len(candidates)),
		attribute.Int("kb_count", len(c.kb)),
		attribute.Bool("semantic_enabled", c.embed != nil),
	)
	defer span.End()

	var degraded atomic.Int64
	perCandidate := make([][]Record, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perCandidate[i] = c.matchCandidate(gctx, &candidates[i], &degraded)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "match run aborted")
		return nil, Stats{}, fmt.Errorf("match run: %w", err)
	}

	stats := Stats{
		Candidates:    len(candidates),
		KnowledgeBase: len(c.kb),
		ByMethod:      make(map[Method]int, 4),
		DegradedPairs: int(degraded.Load()),
	}

	var out []Record
	for _, records := range perCandidate {
		for _, r := range records {
			stats.ByMethod[r.Method]++
			matchesTotal.WithLabelValues(string(r.Method)).Inc()
		}
		out = append(out, records...)
	}
	stats.RawMatches = len(out)
	stats.Duration = time.Since(start)

	candidatesTotal.Add(float64(len(candidates)))
	degradedPairsTotal.Add(float64(stats.DegradedPairs))
	matchRunDuration.Observe(stats.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("raw_matches", stats.RawMatches),
		attribute.Int("degraded_pairs", stats.DegradedPairs),
	)

	c.logger.Info("match run complete",
		slog.Int("candidates", stats.Candidates),
		slog.Int("raw_matches", stats.RawMatches),
		slog.Int("degraded_pairs", stats.DegradedPairs),
		slog.Duration("duration", stats.Duration),
	)
	return out, stats, nil
}

// matchCandidate evaluates one candidate against every knowledge-base
// entry with all four methods. The candidate's embedding is computed at
// most once regardless of knowledge-base size; a failure counts one
// degraded pair per knowledge-base entry it affects.
func (c *Chain) matchCandidate(ctx context.Context, cand *concepts.Concept, degraded *atomic.Int64) []Record {
	var records []Record

	emit := func(entry *concepts.Concept, method Method, raw float64) {
		for _, patternID := range entry.PatternIDs {
			records = append(records, Record{
				Candidate:  cand,
				PatternID:  patternID,
				Method:     method,
				RawScore:   raw,
				Confidence: c.model.Normalize(method, raw),
				Source:     entry,
			})
		}
	}

	candNorm := c.normalizer.Normalize(cand.Name)

	// Candidate embedding is lazy: skipped entirely when no kb entry
	// reaches the semantic stage (embedder disabled).
	var candVec []float32
	var candVecErr error
	candVecReady := false

	for i := range c.kb {
		entry := &c.kb[i]

		if cand.Name == entry.Name {
			emit(entry, MethodExact, 1.0)
		}

		if candNorm != "" && candNorm == c.kbNorm[i] {
			emit(entry, MethodNormalized, 0.9)
		}

		if candNorm != "" && c.kbNorm[i] != "" {
			if ratio := similarityRatio(candNorm, c.kbNorm[i]); ratio >= c.model.FuzzyThreshold()-floatTolerance {
				emit(entry, MethodFuzzy, ratio)
			}
		}

		if c.embed == nil {
			continue
		}
		if !candVecReady {
			candVec, candVecErr = c.embed.Embed(ctx, embeddingDoc(cand))
			candVecReady = true
		}
		if candVecErr != nil {
			degraded.Add(1)
			continue
		}
		entryVec, err := c.embed.Embed(ctx, c.kbDocs[i])
		if err != nil {
			degraded.Add(1)
			continue
		}
		if cos := dotProduct(candVec, entryVec); cos >= c.model.SemanticThreshold()-floatTolerance {
			emit(entry, MethodSemantic, cos)
		}
	}
	return records
}

// embeddingDoc builds the text embedded for a concept: its name plus its
// signature, the two signals the classification was made from.
func embeddingDoc(c *concepts.Concept) string {
	if c.Signature == "" {
		return c.Name
	}
	return c.Name + " " + c.Signature
}
