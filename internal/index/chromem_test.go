package index_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hwk-1212/rag-eval-project/internal/index"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitVector returns a deterministic normalized vector of the given
// dimension, distinct per seed, so similarity search has something
// meaningful to rank.
func unitVector(dim, seed int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32((seed+i)%7) + 1
	}
	var sumSq float32
	for _, x := range v {
		sumSq += x * x
	}
	norm := sqrt32(sumSq)
	for i := range v {
		v[i] /= norm
	}
	return v
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	z := x / 2
	for i := 0; i < 20; i++ {
		z = (z + x/z) / 2
	}
	return z
}

func newTestChromemIndex(t *testing.T, dim int) *index.ChromemIndex {
	t.Helper()
	tmpDir := t.TempDir()
	idx, err := index.NewChromemIndex(index.ChromemConfig{
		Path:       filepath.Join(tmpDir, "chromem.db"),
		Collection: "test_collection",
		Dimension:  dim,
		Compress:   false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestNewChromemIndex_RejectsNonPositiveDimension(t *testing.T) {
	_, err := index.NewChromemIndex(index.ChromemConfig{
		Path:      filepath.Join(t.TempDir(), "chromem.db"),
		Dimension: 0,
	})
	assert.Error(t, err)
}

func TestNewChromemIndex_ExpandsHomePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	idx, err := index.NewChromemIndex(index.ChromemConfig{
		Path:       filepath.Join("~", ".ragbench-test-"+t.Name(), "chromem.db"),
		Collection: "test_collection",
		Dimension:  8,
	})
	require.NoError(t, err)
	defer idx.Close()
	defer os.RemoveAll(filepath.Join(home, ".ragbench-test-"+t.Name()))

	assert.Equal(t, 8, idx.Dimension())
}

func TestChromemIndex_UpsertAndSearch(t *testing.T) {
	idx := newTestChromemIndex(t, 16)
	ctx := context.Background()

	chunks := []ragtypes.EmbeddedChunk{
		{
			Chunk: ragtypes.Chunk{ChunkID: "c1", DocumentID: "doc1", Ordinal: 0, Text: "Go programming basics"},
			Vector: unitVector(16, 1),
		},
		{
			Chunk: ragtypes.Chunk{ChunkID: "c2", DocumentID: "doc1", Ordinal: 1, Text: "Go concurrency patterns"},
			Vector: unitVector(16, 2),
		},
		{
			Chunk: ragtypes.Chunk{ChunkID: "c3", DocumentID: "doc2", Ordinal: 0, Text: "Python data science"},
			Vector: unitVector(16, 3),
		},
	}

	require.NoError(t, idx.Upsert(ctx, chunks))

	results, err := idx.SimilaritySearch(ctx, unitVector(16, 1), 2, index.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "c1", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	assert.InDelta(t, 1.0, results[0].VectorScore, 1e-4)
}

func TestChromemIndex_SimilaritySearchPopulatesVectorField(t *testing.T) {
	idx := newTestChromemIndex(t, 8)
	ctx := context.Background()

	vec := unitVector(8, 5)
	chunk := ragtypes.EmbeddedChunk{
		Chunk:  ragtypes.Chunk{ChunkID: "c1", DocumentID: "doc1", Text: "vector round-trip"},
		Vector: vec,
	}
	require.NoError(t, idx.Upsert(ctx, []ragtypes.EmbeddedChunk{chunk}))

	results, err := idx.SimilaritySearch(ctx, vec, 1, index.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.Len(t, results[0].Vector, 8)
	for i := range vec {
		assert.InDelta(t, vec[i], results[0].Vector[i], 1e-6)
	}
}

func TestChromemIndex_UpsertRejectsDimensionMismatch(t *testing.T) {
	idx := newTestChromemIndex(t, 16)
	ctx := context.Background()

	chunks := []ragtypes.EmbeddedChunk{
		{Chunk: ragtypes.Chunk{ChunkID: "c1", DocumentID: "doc1"}, Vector: unitVector(4, 1)},
	}

	err := idx.Upsert(ctx, chunks)
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)
}

func TestChromemIndex_SimilaritySearchRejectsDimensionMismatch(t *testing.T) {
	idx := newTestChromemIndex(t, 16)
	ctx := context.Background()

	_, err := idx.SimilaritySearch(ctx, unitVector(4, 1), 5, index.Filter{})
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)
}

func TestChromemIndex_SimilaritySearchEmptyIndexReturnsNoResults(t *testing.T) {
	idx := newTestChromemIndex(t, 8)
	ctx := context.Background()

	results, err := idx.SimilaritySearch(ctx, unitVector(8, 1), 5, index.Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemIndex_SimilaritySearchNonPositiveKReturnsNil(t *testing.T) {
	idx := newTestChromemIndex(t, 8)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []ragtypes.EmbeddedChunk{
		{Chunk: ragtypes.Chunk{ChunkID: "c1", DocumentID: "doc1"}, Vector: unitVector(8, 1)},
	}))

	results, err := idx.SimilaritySearch(ctx, unitVector(8, 1), 0, index.Filter{})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestChromemIndex_SimilaritySearchFiltersByDocumentID(t *testing.T) {
	idx := newTestChromemIndex(t, 16)
	ctx := context.Background()

	chunks := []ragtypes.EmbeddedChunk{
		{Chunk: ragtypes.Chunk{ChunkID: "c1", DocumentID: "doc1"}, Vector: unitVector(16, 1)},
		{Chunk: ragtypes.Chunk{ChunkID: "c2", DocumentID: "doc2"}, Vector: unitVector(16, 2)},
	}
	require.NoError(t, idx.Upsert(ctx, chunks))

	results, err := idx.SimilaritySearch(ctx, unitVector(16, 1), 5, index.Filter{DocumentIDs: []string{"doc2"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].ChunkID)
}

func TestChromemIndex_DeleteByDocumentRemovesOnlyThatDocument(t *testing.T) {
	idx := newTestChromemIndex(t, 8)
	ctx := context.Background()

	chunks := []ragtypes.EmbeddedChunk{
		{Chunk: ragtypes.Chunk{ChunkID: "c1", DocumentID: "doc1"}, Vector: unitVector(8, 1)},
		{Chunk: ragtypes.Chunk{ChunkID: "c2", DocumentID: "doc2"}, Vector: unitVector(8, 2)},
	}
	require.NoError(t, idx.Upsert(ctx, chunks))

	require.NoError(t, idx.DeleteByDocument(ctx, "doc1"))

	results, err := idx.SimilaritySearch(ctx, unitVector(8, 1), 10, index.Filter{})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "c1", r.ChunkID)
	}
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].ChunkID)
}

func TestChromemIndex_UpsertReplacesExistingChunkID(t *testing.T) {
	idx := newTestChromemIndex(t, 8)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []ragtypes.EmbeddedChunk{
		{Chunk: ragtypes.Chunk{ChunkID: "c1", DocumentID: "doc1", Text: "original"}, Vector: unitVector(8, 1)},
	}))
	require.NoError(t, idx.Upsert(ctx, []ragtypes.EmbeddedChunk{
		{Chunk: ragtypes.Chunk{ChunkID: "c1", DocumentID: "doc1", Text: "replaced"}, Vector: unitVector(8, 1)},
	}))

	results, err := idx.SimilaritySearch(ctx, unitVector(8, 1), 10, index.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "replaced", results[0].Text)
}

func TestChromemIndex_UpsertEmptyChunksIsNoop(t *testing.T) {
	idx := newTestChromemIndex(t, 8)
	require.NoError(t, idx.Upsert(context.Background(), nil))
}
