// Package reranker scores retrieved chunks against a query, independent of
// how they were retrieved. internal/technique/reranker.go is the only caller
// that widens a candidate set and hands it here.
package reranker

import (
	"context"
)

// Document is a candidate chunk carrying its retrieval-time score.
type Document struct {
	ID      string
	Content string
	Score   float32
}

// ScoredDocument is a Document plus the reranker's own judgment of it.
type ScoredDocument struct {
	Document
	RerankerScore float32
	OriginalRank  int
}

// Reranker orders a candidate set by relevance to a query.
type Reranker interface {
	// Rerank returns docs in the implementation's ranking order, most
	// relevant first, truncated to topK. LLMReranker orders by RerankerScore;
	// SimpleReranker orders by a blend of the original Score and its
	// RerankerScore, so RerankerScore alone is not necessarily descending
	// there. ctx must not be nil.
	Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error)

	Close() error
}
