// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// embedCallTimeout is the per-call embedding timeout. The semantic matcher
// is the only expensive stage; a pair whose embed call exceeds this budget
// degrades to "no semantic match" rather than stalling the run.
const embedCallTimeout = 3 * time.Second

// embedRequestsPerSecond caps the request rate against the embedding
// service so a large corpus does not overwhelm a local Ollama instance.
const embedRequestsPerSecond = 50

// Embedder computes an embedding vector for a text value.
//
// Description:
//
//	The matcher chain is agnostic to the backend; anything that can turn
//	text into a vector satisfies this. Production uses HTTPEmbedder
//	against an Ollama-compatible /api/embed endpoint; tests use a fake.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model identifies the embedding model, used in the corpus hash that
	// keys persisted vectors.
	Model() string
}

// =============================================================================
// HTTPEmbedder
// =============================================================================

// ollamaEmbedReq is the /api/embed request body.
type ollamaEmbedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResp is the /api/embed response body.
type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// HTTPEmbedder calls an Ollama-compatible /api/embed endpoint.
//
// Thread Safety: Safe for concurrent use.
type HTTPEmbedder struct {
	url     string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPEmbedder creates an embedder against the given endpoint and model.
//
// Description:
//
//	Empty url or model fall back to the EMBEDDING_SERVICE_URL and
//	EMBEDDING_MODEL environment variables, then to a local Ollama default.
//	Calls are rate-limited; the per-call timeout is applied by EmbedCache,
//	not here, so warm-up batches and query-time calls share one budget.
func NewHTTPEmbedder(url, model string) *HTTPEmbedder {
	if url == "" {
		url = os.Getenv("EMBEDDING_SERVICE_URL")
	}
	if url == "" {
		url = "http://localhost:11434/api/embed"
	}
	if model == "" {
		model = os.Getenv("EMBEDDING_MODEL")
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &HTTPEmbedder{
		url:     url,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(embedRequestsPerSecond), embedRequestsPerSecond),
	}
}

// Model returns the configured embedding model name.
func (e *HTTPEmbedder) Model() string { return e.model }

// Embed calls the embedding endpoint and returns the raw vector.
//
// Outputs:
//
//	[]float32 - The embedding vector. Never empty on success.
//	error     - Non-nil on rate-limit wait failure, transport failure,
//	            non-200 status, or an empty vector in the response.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embed rate limit: %w", err)
	}

	reqBody, err := json.Marshal(ollamaEmbedReq{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed ollamaEmbedResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}
	return parsed.Embeddings[0], nil
}

// =============================================================================
// EmbedCache
// =============================================================================

// memoEntry holds the compute-once result for one distinct text value.
type memoEntry struct {
	once sync.Once
	vec  []float32 // unit-normalized; nil when err is set
	err  error
}

// EmbedCache memoizes embedding computation per distinct text value.
//
// Description:
//
//	Embeddings for a text value are invariant within a run, so the backend
//	is invoked at most once per distinct value. Concurrent callers for the
//	same value block on the first computation (compute-once-on-miss).
//	Failures are memoized too: retrying an unreachable backend for every
//	pair would multiply the timeout cost across the whole cross product,
//	and a memoized failure keeps degradation deterministic.
//
//	Vectors are stored unit-normalized so cosine similarity reduces to a
//	dot product at comparison time.
//
// Thread Safety: Safe for concurrent use.
type EmbedCache struct {
	mu      sync.Mutex
	entries map[string]*memoEntry
	backend Embedder
	timeout time.Duration
}

// NewEmbedCache wraps a backend with per-text memoization.
func NewEmbedCache(backend Embedder) *EmbedCache {
	return &EmbedCache{
		entries: make(map[string]*memoEntry),
		backend: backend,
		timeout: embedCallTimeout,
	}
}

// Embed returns the unit-normalized vector for text, computing it on first
// use.
//
// Outputs:
//
//	[]float32 - Unit-normalized vector. Callers must not mutate it.
//	error     - The memoized backend error for this text, if computation
//	            failed (including timeout).
func (c *EmbedCache) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	e, ok := c.entries[text]
	if !ok {
		e = &memoEntry{}
		c.entries[text] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		raw, err := c.backend.Embed(callCtx, text)
		embedLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			e.err = err
			return
		}
		unit, err := unitNormalize(raw)
		if err != nil {
			e.err = err
			return
		}
		e.vec = unit
	})
	return e.vec, e.err
}

// Model returns the backend's model name.
func (c *EmbedCache) Model() string { return c.backend.Model() }

// Seed pre-populates the cache with already-normalized vectors, keyed by
// text. Used when restoring persisted knowledge-base vectors.
func (c *EmbedCache) Seed(vectors map[string][]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for text, vec := range vectors {
		e := &memoEntry{vec: vec}
		e.once.Do(func() {})
		c.entries[text] = e
	}
}

// Snapshot returns a copy of all successfully computed vectors, keyed by
// text. Used when persisting knowledge-base vectors.
func (c *EmbedCache) Snapshot() map[string][]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]float32, len(c.entries))
	for text, e := range c.entries {
		if e.vec != nil {
			out[text] = e.vec
		}
	}
	return out
}

// Len returns the number of memoized entries, including failures.
func (c *EmbedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// =============================================================================
// Vector Helpers
// =============================================================================

// unitNormalize returns v scaled to unit length.
func unitNormalize(v []float32) ([]float32, error) {
	norm := l2Norm(v)
	if norm == 0 {
		return nil, fmt.Errorf("zero-norm embedding vector")
	}
	unit := make([]float32, len(v))
	for i, x := range v {
		unit[i] = x / float32(norm)
	}
	return unit, nil
}

// l2Norm computes the L2 (Euclidean) norm of a float32 vector.
func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// dotProduct computes the dot product of two float32 vectors. For two unit
// vectors this is their cosine similarity. Mismatched lengths use the
// shorter vector.
func dotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return float64(sum)
}
