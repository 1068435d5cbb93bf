// Package index implements the Vector Index Client capability boundary:
// upsert embedded chunks, similarity search by vector, and delete by document.
// It intentionally does not know how to embed text — that is the Embedding
// Client's job (internal/embeddings) — so callers embed first and hand this
// package a raw vector.
package index

import (
	"context"
	"errors"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
)

// ErrDimensionMismatch is returned when a vector's length does not match the
// index's configured dimension.
var ErrDimensionMismatch = errors.New("index: vector dimension mismatch")

// ErrNotFound is returned when a lookup by id finds nothing.
var ErrNotFound = errors.New("index: not found")

// Filter narrows a similarity search to a set of document ids. A nil or empty
// DocumentIDs means no filtering.
type Filter struct {
	DocumentIDs []string
}

// Index is the Vector Index Client contract. Implementations must
// return results in strictly descending score order and must be safe for
// concurrent read access; writes happen only at ingest, outside the
// request-serving path.
type Index interface {
	// Upsert stores or replaces embedded chunks.
	Upsert(ctx context.Context, chunks []ragtypes.EmbeddedChunk) error

	// SimilaritySearch returns the k nearest chunks to queryVector, most
	// similar first, restricted to filter.DocumentIDs when non-empty.
	SimilaritySearch(ctx context.Context, queryVector []float32, k int, filter Filter) ([]ragtypes.RetrievedChunk, error)

	// DeleteByDocument removes every chunk belonging to documentID.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Dimension reports the fixed vector length this index was built for.
	Dimension() int

	// Close releases any underlying resources (file handles, connections).
	Close() error
}
