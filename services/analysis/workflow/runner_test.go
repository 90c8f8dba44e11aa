// Copyright (C) 2025 QPA: Quantum Patterns Analyser
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qpatterns/qpa/services/analysis/report"
)

const (
	testCatalogJSON = `[
		{"id": "P-17", "name": "Quantum Gate"},
		{"id": "P-3", "name": "State Preparation"}
	]`

	testKBCSV = "framework,name,kind,signature,file,line,pattern_ids\n" +
		"qiskit,CNOTGate,Class,CNOTGate(control qubit),gates.py,10,P-17\n" +
		"qiskit,StateVector,Class,StateVector(data),states.py,20,P-3\n"

	testCorpusCSV = "project,name,kind,signature,file,line\n" +
		"x,CNOTGate,Class,CNOTGate(a b),circuit.py,5\n" +
		"x,get_state_vector,Function,get_state_vector(),sim.py,9\n" +
		"x,unrelated_parser,Function,unrelated_parser(s),io.py,3\n"
)

// failingEmbedder simulates an unreachable embedding backend.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("backend unreachable")
}

func (failingEmbedder) Model() string { return "down-model" }

func writeTestInputs(t *testing.T) (catalogPath, kbPath, corpusPath string) {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	return write("catalog.json", testCatalogJSON),
		write("qiskit.csv", testKBCSV),
		write("myproj.csv", testCorpusCSV)
}

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestRun_EndToEnd(t *testing.T) {
	catalogPath, kbPath, corpusPath := writeTestInputs(t)
	outDir := filepath.Join(t.TempDir(), "report")

	res, err := Run(context.Background(), Config{
		CatalogPath:    catalogPath,
		KnowledgeBases: map[string]string{"qiskit": kbPath},
		Corpora:        map[string]string{"myproj": corpusPath},
		OutputDir:      outDir,
		Logger:         testLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.RunID)

	// CNOTGate matches exactly, get_state_vector matches StateVector after
	// normalization, unrelated_parser matches nothing.
	require.Equal(t, 2, res.Table.Len())
	rows := res.Table.Rows()
	assert.Equal(t, "CNOTGate", rows[0].CandidateName)
	assert.Equal(t, "EXACT", rows[0].Method)
	assert.Equal(t, "get_state_vector", rows[1].CandidateName)
	assert.Equal(t, "NORMALIZED", rows[1].Method)
	assert.Equal(t, 0.9, rows[1].Confidence)

	// Candidates carry the project identifier as origin.
	assert.Equal(t, "myproj", rows[0].Project)
	assert.Equal(t, "qiskit/CNOTGate", rows[0].Provenance)

	// All report files plus the summary are on disk.
	assert.Len(t, res.ReportFiles, 5)
	for _, f := range res.ReportFiles {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}
	summary, err := os.ReadFile(res.SummaryPath)
	require.NoError(t, err)
	assert.Contains(t, string(summary), res.RunID)
	assert.Contains(t, string(summary), report.MatchTableFile)
}

func TestRun_DeterministicOutput(t *testing.T) {
	catalogPath, kbPath, corpusPath := writeTestInputs(t)

	cfg := Config{
		CatalogPath:    catalogPath,
		KnowledgeBases: map[string]string{"qiskit": kbPath},
		Corpora:        map[string]string{"myproj": corpusPath},
		Logger:         testLogger(),
	}

	cfg.OutputDir = filepath.Join(t.TempDir(), "a")
	first, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	cfg.OutputDir = filepath.Join(t.TempDir(), "b")
	second, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	// The exported match tables are byte-identical across runs.
	a, err := os.ReadFile(first.ReportFiles[0])
	require.NoError(t, err)
	b, err := os.ReadFile(second.ReportFiles[0])
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_MissingCatalogIsFatal(t *testing.T) {
	_, kbPath, corpusPath := writeTestInputs(t)

	_, err := Run(context.Background(), Config{
		CatalogPath:    filepath.Join(t.TempDir(), "absent.json"),
		KnowledgeBases: map[string]string{"qiskit": kbPath},
		Corpora:        map[string]string{"myproj": corpusPath},
		OutputDir:      t.TempDir(),
		Logger:         testLogger(),
	})
	require.Error(t, err)
	assert.True(t, IsInputError(err))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "pattern-catalog", se.Stage)
}

func TestRun_UnknownPatternIDIsFatal(t *testing.T) {
	catalogPath, _, corpusPath := writeTestInputs(t)

	dir := t.TempDir()
	kbPath := filepath.Join(dir, "bad.csv")
	bad := "framework,name,kind,signature,file,line,pattern_ids\n" +
		"qiskit,CNOTGate,Class,sig,gates.py,10,P-999\n"
	require.NoError(t, os.WriteFile(kbPath, []byte(bad), 0o644))

	_, err := Run(context.Background(), Config{
		CatalogPath:    catalogPath,
		KnowledgeBases: map[string]string{"qiskit": kbPath},
		Corpora:        map[string]string{"myproj": corpusPath},
		OutputDir:      t.TempDir(),
		Logger:         testLogger(),
	})
	require.Error(t, err)
	assert.True(t, IsInputError(err))
	assert.Contains(t, err.Error(), "P-999")
}

func TestRun_EmptyKnowledgeBaseIsFatal(t *testing.T) {
	catalogPath, _, corpusPath := writeTestInputs(t)

	dir := t.TempDir()
	kbPath := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(kbPath,
		[]byte("framework,name,kind,signature,file,line,pattern_ids\n"), 0o644))

	_, err := Run(context.Background(), Config{
		CatalogPath:    catalogPath,
		KnowledgeBases: map[string]string{"qiskit": kbPath},
		Corpora:        map[string]string{"myproj": corpusPath},
		OutputDir:      t.TempDir(),
		Logger:         testLogger(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKnowledgeBaseEmpty)
	assert.True(t, IsInputError(err))
}

func TestRun_DegradedEmbedderStillCompletes(t *testing.T) {
	catalogPath, kbPath, corpusPath := writeTestInputs(t)
	outDir := t.TempDir()

	res, err := Run(context.Background(), Config{
		CatalogPath:    catalogPath,
		KnowledgeBases: map[string]string{"qiskit": kbPath},
		Corpora:        map[string]string{"myproj": corpusPath},
		OutputDir:      outDir,
		Embedder:       failingEmbedder{},
		Logger:         testLogger(),
	})
	require.NoError(t, err, "a degraded semantic backend must not abort the run")

	// Exact and normalized matches are unaffected.
	assert.Equal(t, 2, res.Table.Len())
	assert.Greater(t, res.Stats.DegradedPairs, 0)

	summary, err := os.ReadFile(res.SummaryPath)
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Degraded pairs")
}

func TestRun_EmptyCorpusYieldsEmptyReport(t *testing.T) {
	catalogPath, kbPath, _ := writeTestInputs(t)

	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(corpusPath,
		[]byte("project,name,kind,signature,file,line\n"), 0o644))

	res, err := Run(context.Background(), Config{
		CatalogPath:    catalogPath,
		KnowledgeBases: map[string]string{"qiskit": kbPath},
		Corpora:        map[string]string{"myproj": corpusPath},
		OutputDir:      t.TempDir(),
		Logger:         testLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Table.Len())
	assert.Len(t, res.ReportFiles, 5)
}
