package technique

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hwk-1212/rag-eval-project/internal/reranker"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/hwk-1212/rag-eval-project/internal/tracer"
)

const rerankSystemPrompt = "You are a relevance judge. Given a query and a passage, output a single integer from 0 to 10 rating how relevant the passage is to the query. Output only the number."

// Reranker widens the candidate set, scores each candidate, and keeps the
// top_k highest scoring. By default it uses a point-wise LLM judgment per
// candidate; unlike reranker.LLMReranker (all-or-nothing on a scorer
// failure), it scores candidates independently so one failed judgment falls
// back to a normalized vector score instead of failing the whole technique.
// With cfg.LexicalRerank set, it skips the LLM judgment step entirely and
// scores candidates with reranker.SimpleReranker's term-overlap heuristic —
// cheaper and useful when the configured LLM is rate-limited relative to
// RerankCandidates. Final answer generation always goes through the LLM.
type Reranker struct {
	deps Deps
}

func (r *Reranker) Answer(ctx context.Context, query string, documentIDs []string, topK int, cfg ragtypes.RAGConfig) ragtypes.TechniqueResult {
	trc := tracer.New()
	return run(NameReranker, trc, func() ragtypes.TechniqueResult {
		candidateCount := cfg.RerankCandidates
		if candidateCount <= 0 {
			candidateCount = 4 * topK
		}
		if candidateCount < 20 {
			candidateCount = 20
		}
		trc.Log("init", previewText(query, 100), map[string]any{"top_k": topK, "rerank_candidates": candidateCount})

		retrievalStart := time.Now()
		trc.Log("retrieve_prepare", "embedding query", nil)

		if ctx.Err() != nil {
			trc.Log("retrieve_error", ctx.Err().Error(), nil)
			return errResult(NameReranker, trc, cancelOrTimeout(ctx))
		}

		vector, err := r.deps.Embedder.EmbedQuery(ctx, query)
		if err != nil {
			trc.Log("retrieve_error", err.Error(), nil)
			return errResult(NameReranker, trc, classifyRetrievalErr(ctx, err))
		}

		candidates, err := r.deps.Index.SimilaritySearch(ctx, vector, candidateCount, filterFor(documentIDs))
		if err != nil {
			trc.Log("retrieve_error", err.Error(), nil)
			return errResult(NameReranker, trc, classifyRetrievalErr(ctx, err))
		}
		trc.Log("retrieve_complete", "widened candidate search complete", map[string]any{
			"result_count": len(candidates),
			"top_scores":   topScores(candidates, 3),
		})

		var failures int
		if cfg.LexicalRerank {
			failures = r.rerankLexical(ctx, query, candidates)
			trc.Log("rerank_after", "lexical term-overlap scoring", map[string]any{"scored": len(candidates)})
		} else {
			maxVectorScore := 0.0
			for _, c := range candidates {
				if c.Score > maxVectorScore {
					maxVectorScore = c.Score
				}
			}
			for i, c := range candidates {
				score, ferr := r.scoreCandidate(ctx, query, c.Text)
				if ferr != nil {
					failures++
					normalized := 0.0
					if maxVectorScore > 0 {
						normalized = (c.Score / maxVectorScore) * 10
					}
					candidates[i].RerankScore = normalized
				} else {
					candidates[i].RerankScore = score
				}
				candidates[i].VectorScore = c.Score
			}
			trc.Log("rerank_after", "scored candidates", map[string]any{"scored": len(candidates), "failures": failures})
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].RerankScore != candidates[j].RerankScore {
				return candidates[i].RerankScore > candidates[j].RerankScore
			}
			return candidates[i].VectorScore > candidates[j].VectorScore
		})

		limit := topK
		if limit > len(candidates) {
			limit = len(candidates)
		}
		final := candidates[:limit]
		for i := range final {
			final[i].Score = final[i].RerankScore
		}
		retrievalTime := time.Since(retrievalStart)

		answer, generationTime, errKind := generate(ctx, NameReranker, r.deps.LLM, trc, query, final)
		if errKind != ragtypes.ErrorKindNone {
			return errResult(NameReranker, trc, errKind)
		}

		return ragtypes.TechniqueResult{
			TechniqueName:   NameReranker,
			AnswerText:      answer,
			RetrievedChunks: final,
			Trace:           trc.Events(),
			RetrievalTime:   retrievalTime,
			GenerationTime:  generationTime,
			TotalTime:       retrievalTime + generationTime,
		}
	})
}

func (r *Reranker) scoreCandidate(ctx context.Context, query, passage string) (float64, error) {
	user := fmt.Sprintf("Query: %s\n\nPassage: %s", query, passage)
	raw, err := r.deps.LLM.Complete(ctx, rerankSystemPrompt, user, 0, 8)
	if err != nil {
		return 0, err
	}
	return float64(reranker.ParseScore(raw)), nil
}

// rerankLexical scores candidates with reranker.SimpleReranker's term-overlap
// heuristic instead of an LLM judgment, converting to and from this
// technique's RetrievedChunk shape. SimpleReranker.RerankerScore is on
// [0, 1]; it is scaled by 10 here so RerankScore stays on the same 0-10 scale
// scoreCandidate produces, keeping the sort and answer-generation logic below
// agnostic to which path populated it. Returns the number of candidates
// SimpleReranker did not return a score for, mirroring the failure count the
// LLM path reports.
func (r *Reranker) rerankLexical(ctx context.Context, query string, candidates []ragtypes.RetrievedChunk) int {
	docs := make([]reranker.Document, len(candidates))
	for i, c := range candidates {
		docs[i] = reranker.Document{ID: c.ChunkID, Content: c.Text, Score: float32(c.Score)}
	}

	scored, err := reranker.NewSimpleReranker().Rerank(ctx, query, docs, len(docs))
	if err != nil {
		for i, c := range candidates {
			candidates[i].RerankScore = c.Score * 10
			candidates[i].VectorScore = c.Score
		}
		return len(candidates)
	}

	byID := make(map[string]float32, len(scored))
	for _, s := range scored {
		byID[s.ID] = s.RerankerScore
	}

	failures := 0
	for i, c := range candidates {
		score, ok := byID[c.ChunkID]
		if !ok {
			failures++
			score = 0
		}
		candidates[i].RerankScore = float64(score) * 10
		candidates[i].VectorScore = c.Score
	}
	return failures
}
