package reranker

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// Scorer is the subset of llmclient.Client this package depends on, so tests
// can substitute a fake without importing the concrete HTTP-backed client.
type Scorer interface {
	Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error)
}

var scoreDigits = regexp.MustCompile(`-?\d+`)

const rerankSystemPrompt = "You are a relevance judge. Given a query and a passage, output a single integer from 0 to 10 rating how relevant the passage is to the query. Output only the number."

// LLMReranker scores each document with a point-wise LLM relevance judgment
// (0-10), the algorithm the Reranker technique is built on. It implements
// the same Reranker interface as SimpleReranker so callers can swap between
// a cheap lexical fallback and an LLM-backed one without changing call sites.
type LLMReranker struct {
	scorer Scorer
}

// NewLLMReranker builds an LLMReranker over scorer.
func NewLLMReranker(scorer Scorer) *LLMReranker {
	return &LLMReranker{scorer: scorer}
}

// Rerank scores every document independently and returns the topK highest
// scoring, breaking ties by preserving original order. A document whose
// score cannot be parsed is treated as a 0, per the tolerant-parsing
// convention used across this codebase's LLM-judged scores.
func (r *LLMReranker) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if topK <= 0 {
		topK = len(docs)
	}
	if len(docs) == 0 {
		return []ScoredDocument{}, nil
	}

	scored := make([]ScoredDocument, len(docs))
	for i, doc := range docs {
		score, err := r.scoreOne(ctx, query, doc)
		if err != nil {
			return nil, fmt.Errorf("reranker: scoring document %s: %w", doc.ID, err)
		}
		scored[i] = ScoredDocument{
			Document:      doc,
			RerankerScore: score,
			OriginalRank:  i,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RerankerScore > scored[j].RerankerScore
	})

	limit := topK
	if limit > len(scored) {
		limit = len(scored)
	}
	return scored[:limit], nil
}

func (r *LLMReranker) scoreOne(ctx context.Context, query string, doc Document) (float32, error) {
	user := fmt.Sprintf("Query: %s\n\nPassage: %s", query, doc.Content)
	raw, err := r.scorer.Complete(ctx, rerankSystemPrompt, user, 0, 8)
	if err != nil {
		return 0, err
	}
	return ParseScore(raw) / 10, nil
}

// ParseScore tolerantly extracts the first integer in an LLM response,
// clamped to [0, 10]. LLMs routinely wrap the number in prose despite being
// told not to ("Score: 7" or "7/10"), so a strict integer parse would drop a
// large fraction of otherwise-usable judgments. Exported so callers doing
// their own per-candidate scoring (with different failure handling than
// Rerank's all-or-nothing behavior) can reuse the same parser.
func ParseScore(raw string) float32 {
	match := scoreDigits.FindString(raw)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	if n < 0 {
		n = 0
	}
	if n > 10 {
		n = 10
	}
	return float32(n)
}
