// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matching

// Knowledge-base embedding vectors are expensive to compute (one call per
// distinct concept text) but change only when the knowledge base or the
// embedding model changes. This store persists them in BadgerDB between
// runs, keyed by a corpus hash: SHA256 over the sorted embedding texts plus
// the model name. Any change to the knowledge base or model produces a
// different hash, so stale entries become unreachable and expire via TTL
// without an explicit invalidation API.
//
// Storage layout:
//
//	qpa/emb/v1/{corpusHash}  →  gob-encoded map[string][]float32
//	                             (embedding text → unit-normalized vector)
//	                             TTL: 7 days

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// vectorStoreTTL is the lifetime of a persisted vector set. Long enough to
// survive repeated runs over the same knowledge base without accumulating
// stale corpora indefinitely.
const vectorStoreTTL = 7 * 24 * time.Hour

// vectorStoreKeyPrefix is prepended to the corpus hash to form the BadgerDB
// key. Versioned to allow future format changes without collision.
const vectorStoreKeyPrefix = "qpa/emb/v1/"

// VectorStore persists unit-normalized embedding vectors between runs.
//
// Description:
//
//	Nil-safe by convention: callers check for a nil VectorStore and skip
//	persistence, operating in in-memory-only mode. That is the correct
//	behavior for tests and for runs without a cache directory configured.
//
// Thread Safety: Implementations must be safe for concurrent use.
type VectorStore interface {
	// LoadVectors retrieves cached vectors for the corpus hash.
	// Returns (nil, nil) on cache miss (absent key or expired TTL).
	LoadVectors(ctx context.Context, corpusHash string) (map[string][]float32, error)

	// SaveVectors persists vectors under the corpus hash with a TTL.
	// Persistence failure is non-fatal for callers: vectors are already in
	// memory and will be recomputed next run.
	SaveVectors(ctx context.Context, corpusHash string, vectors map[string][]float32) error

	// Close releases the underlying database.
	Close() error
}

// =============================================================================
// BadgerVectorStore
// =============================================================================

// BadgerVectorStore implements VectorStore on an embedded BadgerDB.
//
// Thread Safety: Safe for concurrent use; BadgerDB transactions are
// per-goroutine.
type BadgerVectorStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadgerVectorStore opens (or creates) a BadgerDB at dir.
//
// Inputs:
//
//	dir    - Directory for the database files.
//	logger - Logger instance. Must not be nil.
func OpenBadgerVectorStore(dir string, logger *slog.Logger) (*BadgerVectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logger is too chatty for a CLI run
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening vector store at %s: %w", dir, err)
	}
	return &BadgerVectorStore{db: db, logger: logger}, nil
}

// LoadVectors retrieves the vector set for a corpus hash.
func (s *BadgerVectorStore) LoadVectors(_ context.Context, corpusHash string) (map[string][]float32, error) {
	var vectors map[string][]float32
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(vectorStoreKeyPrefix + corpusHash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&vectors)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil // normal cache miss, including TTL expiry
	}
	if err != nil {
		return nil, fmt.Errorf("loading vectors for %s: %w", shortHash(corpusHash), err)
	}
	return vectors, nil
}

// SaveVectors persists the vector set for a corpus hash with the store TTL.
func (s *BadgerVectorStore) SaveVectors(_ context.Context, corpusHash string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vectors); err != nil {
		return fmt.Errorf("encoding vectors: %w", err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(vectorStoreKeyPrefix+corpusHash), buf.Bytes()).
			WithTTL(vectorStoreTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("saving vectors for %s: %w", shortHash(corpusHash), err)
	}
	s.logger.Debug("persisted embedding vectors",
		slog.Int("vector_count", len(vectors)),
		slog.String("corpus_hash", shortHash(corpusHash)),
	)
	return nil
}

// Close closes the underlying BadgerDB.
func (s *BadgerVectorStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Corpus Hash
// =============================================================================

// ComputeCorpusHash digests the sorted embedding texts plus the model name.
// Any change to the knowledge base's embeddable text or to the model yields
// a different hash and therefore a fresh warm-up.
func ComputeCorpusHash(texts []string, model string) string {
	sorted := make([]string, len(texts))
	copy(sorted, texts)
	sort.Strings(sorted)

	h := sha256.New()
	for _, t := range sorted {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

// shortHash abbreviates a corpus hash for log lines.
func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
