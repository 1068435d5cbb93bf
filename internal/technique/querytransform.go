package technique

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/hwk-1212/rag-eval-project/internal/tracer"
)

const (
	rewriteSystemPrompt   = "Rewrite the user's question to be more specific and searchable, preserving its meaning. Output only the rewritten question."
	stepbackSystemPrompt  = "Given a specific question, produce one broader, more general question that provides useful background context. Output only the broader question."
	decomposeSystemPrompt = "Break the user's question into simpler sub-questions that together cover it. Output exactly %d sub-questions, one per line, no numbering."
)

// QueryTransform rewrites, steps back from, or decomposes the query before
// retrieval, then always generates against the original query.
type QueryTransform struct {
	deps Deps
}

func (q *QueryTransform) Answer(ctx context.Context, query string, documentIDs []string, topK int, cfg ragtypes.RAGConfig) ragtypes.TechniqueResult {
	trc := tracer.New()
	return run(NameQueryTransform, trc, func() ragtypes.TechniqueResult {
		mode := cfg.TransformationType
		if mode == "" {
			mode = "rewrite"
		}
		trc.Log("init", previewText(query, 100), map[string]any{"top_k": topK, "transformation_type": mode})

		switch mode {
		case "decompose":
			return q.decompose(ctx, trc, query, documentIDs, topK, cfg)
		case "stepback":
			return q.singleTransform(ctx, trc, query, documentIDs, topK, stepbackSystemPrompt, "stepback")
		default:
			return q.singleTransform(ctx, trc, query, documentIDs, topK, rewriteSystemPrompt, "rewrite")
		}
	})
}

func (q *QueryTransform) singleTransform(ctx context.Context, trc *tracer.Tracer, query string, documentIDs []string, topK int, systemPrompt, stepName string) ragtypes.TechniqueResult {
	if ctx.Err() != nil {
		trc.Log(stepName+"_error", ctx.Err().Error(), nil)
		return errResult(NameQueryTransform, trc, cancelOrTimeout(ctx))
	}

	transformed, err := q.deps.LLM.Complete(ctx, systemPrompt, fmt.Sprintf("Question: %s", query), 0.3, 128)
	if err != nil {
		trc.Log(stepName+"_error", err.Error(), nil)
		return errResult(NameQueryTransform, trc, classifyLLMErr(ctx, err))
	}
	trc.Log(stepName, "transformed query", map[string]any{"transformed": previewText(transformed, 150)})

	return baselineRun(ctx, NameQueryTransform, q.deps, trc, transformed, query, documentIDs, topK)
}

func (q *QueryTransform) decompose(ctx context.Context, trc *tracer.Tracer, query string, documentIDs []string, topK int, cfg ragtypes.RAGConfig) ragtypes.TechniqueResult {
	n := cfg.NumSubqueries
	if n <= 0 {
		n = 3
	}

	if ctx.Err() != nil {
		trc.Log("decompose_error", ctx.Err().Error(), nil)
		return errResult(NameQueryTransform, trc, cancelOrTimeout(ctx))
	}

	raw, err := q.deps.LLM.Complete(ctx, fmt.Sprintf(decomposeSystemPrompt, n), fmt.Sprintf("Question: %s", query), 0.3, 256)
	if err != nil {
		trc.Log("decompose_error", err.Error(), nil)
		return errResult(NameQueryTransform, trc, classifyLLMErr(ctx, err))
	}
	subqueries := parseLines(raw, n)
	trc.Log("decompose", "generated sub-queries", map[string]any{"sub_queries": subqueries})

	retrievalStart := time.Now()
	best := make(map[string]ragtypes.RetrievedChunk)
	for _, sq := range subqueries {
		if ctx.Err() != nil {
			trc.Log("retrieve_error", ctx.Err().Error(), nil)
			return errResult(NameQueryTransform, trc, cancelOrTimeout(ctx))
		}
		vector, err := q.deps.Embedder.EmbedQuery(ctx, sq)
		if err != nil {
			trc.Log("retrieve_error", err.Error(), nil)
			continue
		}
		chunks, err := q.deps.Index.SimilaritySearch(ctx, vector, topK, filterFor(documentIDs))
		if err != nil {
			trc.Log("retrieve_error", err.Error(), nil)
			continue
		}
		for _, c := range chunks {
			if existing, ok := best[c.ChunkID]; !ok || c.Score > existing.Score {
				best[c.ChunkID] = c
			}
		}
	}

	if len(best) == 0 {
		trc.Log("retrieve_error", "all sub-query retrievals failed", nil)
		return errResult(NameQueryTransform, trc, ragtypes.ErrorKindRetrievalFailed)
	}

	merged := make([]ragtypes.RetrievedChunk, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })

	limit := topK
	if limit > len(merged) {
		limit = len(merged)
	}
	final := merged[:limit]
	retrievalTime := time.Since(retrievalStart)

	trc.Log("retrieve_complete", "deduplicated sub-query union", map[string]any{
		"result_count": len(final),
		"top_scores":   topScores(final, 3),
	})

	answer, generationTime, errKind := generate(ctx, NameQueryTransform, q.deps.LLM, trc, query, final)
	if errKind != ragtypes.ErrorKindNone {
		return errResult(NameQueryTransform, trc, errKind)
	}

	return ragtypes.TechniqueResult{
		TechniqueName:   NameQueryTransform,
		AnswerText:      answer,
		RetrievedChunks: final,
		Trace:           trc.Events(),
		RetrievalTime:   retrievalTime,
		GenerationTime:  generationTime,
		TotalTime:       retrievalTime + generationTime,
	}
}

// parseLines splits an LLM's line-per-item response, dropping blanks, and
// caps it at n items in case the model over-produces.
func parseLines(raw string, n int) []string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, n)
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, l)
		if len(out) == n {
			break
		}
	}
	if len(out) == 0 {
		return []string{raw}
	}
	return out
}
