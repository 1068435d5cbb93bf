package reranker

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrNilContext is returned when a nil context is passed to Rerank.
var ErrNilContext = errors.New("reranker: context cannot be nil")

// SimpleReranker scores a candidate by term overlap with the query and
// blends it 50/50 with the candidate's original retrieval score. It needs no
// LLM call, so internal/technique/reranker.go can swap to it via
// ragtypes.RAGConfig.LexicalRerank when the configured LLM is too slow or
// rate-limited to score a whole widened candidate set one passage at a time.
type SimpleReranker struct{}

// NewSimpleReranker constructs a SimpleReranker. It holds no state.
func NewSimpleReranker() *SimpleReranker {
	return &SimpleReranker{}
}

// Rerank tokenizes query and each document's content, scores term overlap,
// and sorts by 0.5*original_score + 0.5*overlap. A query with no scorable
// tokens (empty or all stopwords) falls back to ranking by original score
// alone, since overlap is undefined against nothing.
func (r *SimpleReranker) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if topK <= 0 {
		topK = len(docs)
	}
	if len(docs) == 0 {
		return []ScoredDocument{}, nil
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return fallbackRank(docs, topK), nil
	}

	const originalWeight, overlapWeight = 0.5, 0.5

	type candidate struct {
		doc           ScoredDocument
		combinedScore float32
	}

	scored := make([]candidate, len(docs))
	for i, doc := range docs {
		overlap := calculateTermOverlap(queryTokens, tokenize(doc.Content))
		scored[i] = candidate{
			doc: ScoredDocument{
				Document:      doc,
				RerankerScore: overlap,
				OriginalRank:  i,
			},
			combinedScore: originalWeight*doc.Score + overlapWeight*overlap,
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].combinedScore > scored[j].combinedScore
	})

	limit := topK
	if limit > len(scored) {
		limit = len(scored)
	}
	result := make([]ScoredDocument, limit)
	for i := 0; i < limit; i++ {
		result[i] = scored[i].doc
	}
	return result, nil
}

// Close is a no-op; SimpleReranker holds no resources.
func (r *SimpleReranker) Close() error {
	return nil
}

// tokenize lowercases text, splits on non-alphanumeric runs, and drops
// stopwords and tokens of length 2 or less.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !isAlphanumeric(r)
	})

	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !isStopword(token) && len(token) > 2 {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true, "he": true,
	"she": true, "it": true, "we": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
}

func isStopword(token string) bool {
	return stopwords[token]
}

// calculateTermOverlap is the fraction of unique query tokens also present in
// docTokens, on [0, 1].
func calculateTermOverlap(queryTokens, docTokens []string) float32 {
	if len(queryTokens) == 0 {
		return 0
	}

	docTokenSet := make(map[string]bool, len(docTokens))
	for _, token := range docTokens {
		docTokenSet[token] = true
	}

	counted := make(map[string]bool, len(queryTokens))
	matches := 0
	for _, token := range queryTokens {
		if counted[token] {
			continue
		}
		counted[token] = true
		if docTokenSet[token] {
			matches++
		}
	}
	return float32(matches) / float32(len(counted))
}

// fallbackRank ranks by original score alone, used when the query yields no
// scorable tokens.
func fallbackRank(docs []Document, topK int) []ScoredDocument {
	sorted := make([]Document, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	limit := topK
	if limit > len(sorted) {
		limit = len(sorted)
	}
	result := make([]ScoredDocument, limit)
	for i := 0; i < limit; i++ {
		result[i] = ScoredDocument{
			Document:      sorted[i],
			RerankerScore: sorted[i].Score,
			OriginalRank:  i,
		}
	}
	return result
}
