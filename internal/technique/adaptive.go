package technique

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/hwk-1212/rag-eval-project/internal/tracer"
)

const classifySystemPrompt = "Classify the user's question into exactly one of these categories: factual, analytical, opinion, contextual. Output only the single category word."

const diversityTheta = 0.15

// Adaptive classifies the query's intent and routes to a per-category
// retrieval strategy.
type Adaptive struct {
	deps Deps
}

func (a *Adaptive) Answer(ctx context.Context, query string, documentIDs []string, topK int, cfg ragtypes.RAGConfig) ragtypes.TechniqueResult {
	trc := tracer.New()
	return run(NameAdaptive, trc, func() ragtypes.TechniqueResult {
		trc.Log("init", previewText(query, 100), map[string]any{"top_k": topK})

		if ctx.Err() != nil {
			trc.Log("classify_error", ctx.Err().Error(), nil)
			return errResult(NameAdaptive, trc, cancelOrTimeout(ctx))
		}

		raw, err := a.deps.LLM.Complete(ctx, classifySystemPrompt, query, 0, 8)
		if err != nil {
			trc.Log("classify_error", err.Error(), nil)
			return errResult(NameAdaptive, trc, classifyLLMErr(ctx, err))
		}
		category := normalizeCategory(raw)
		trc.Log("adaptive_strategy_select", "classified query", map[string]any{"category": category})

		switch category {
		case "analytical":
			qt := &QueryTransform{deps: a.deps}
			decomposeCfg := cfg
			decomposeCfg.TransformationType = "decompose"
			if decomposeCfg.NumSubqueries <= 0 {
				decomposeCfg.NumSubqueries = 3
			}
			return renameResult(qt.decompose(ctx, trc, query, documentIDs, topK, decomposeCfg), NameAdaptive)
		case "opinion":
			return a.opinionRetrieval(ctx, trc, query, documentIDs, topK, cfg)
		case "factual":
			qtDeps := QueryTransform{deps: a.deps}
			return renameResult(qtDeps.singleTransform(ctx, trc, query, documentIDs, topK, rewriteSystemPrompt, "rewrite"), NameAdaptive)
		default: // contextual, or an unrecognized label
			return renameResult(baselineRun(ctx, NameAdaptive, a.deps, trc, query, query, documentIDs, topK), NameAdaptive)
		}
	})
}

func normalizeCategory(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, c := range []string{"factual", "analytical", "opinion", "contextual"} {
		if strings.Contains(lower, c) {
			return c
		}
	}
	return "contextual"
}

// renameResult stamps techniqueName onto a result produced by delegating to
// another technique's body, so the caller (Adaptive) is what's reported.
func renameResult(result ragtypes.TechniqueResult, techniqueName string) ragtypes.TechniqueResult {
	result.TechniqueName = techniqueName
	return result
}

// opinionRetrieval retrieves a wide candidate set, then greedily selects
// chunks whose cosine distance to every already-selected chunk exceeds
// diversityTheta, to avoid grounding an opinion answer in near-duplicate
// passages that share one viewpoint.
func (a *Adaptive) opinionRetrieval(ctx context.Context, trc *tracer.Tracer, query string, documentIDs []string, topK int, cfg ragtypes.RAGConfig) ragtypes.TechniqueResult {
	theta := cfg.DiversityTheta
	if theta <= 0 {
		theta = diversityTheta
	}

	retrievalStart := time.Now()
	trc.Log("retrieve_prepare", "embedding query", nil)

	if ctx.Err() != nil {
		trc.Log("retrieve_error", ctx.Err().Error(), nil)
		return errResult(NameAdaptive, trc, cancelOrTimeout(ctx))
	}

	vector, err := a.deps.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		trc.Log("retrieve_error", err.Error(), nil)
		return errResult(NameAdaptive, trc, classifyRetrievalErr(ctx, err))
	}

	widerK := topK * 4
	if widerK < 20 {
		widerK = 20
	}
	candidates, err := a.deps.Index.SimilaritySearch(ctx, vector, widerK, filterFor(documentIDs))
	if err != nil {
		trc.Log("retrieve_error", err.Error(), nil)
		return errResult(NameAdaptive, trc, classifyRetrievalErr(ctx, err))
	}
	trc.Log("retrieve_complete", "wide candidate search for diversity selection", map[string]any{
		"result_count": len(candidates),
		"top_scores":   topScores(candidates, 3),
	})

	selected := diversitySelect(candidates, topK, theta)
	retrievalTime := time.Since(retrievalStart)

	trc.Log("adaptive_diversity_select", "greedy diversity selection", map[string]any{
		"selected_count": len(selected),
		"theta":          theta,
	})

	answer, generationTime, errKind := generate(ctx, NameAdaptive, a.deps.LLM, trc, query, selected)
	if errKind != ragtypes.ErrorKindNone {
		return errResult(NameAdaptive, trc, errKind)
	}

	return ragtypes.TechniqueResult{
		TechniqueName:   NameAdaptive,
		AnswerText:      answer,
		RetrievedChunks: selected,
		Trace:           trc.Events(),
		RetrievalTime:   retrievalTime,
		GenerationTime:  generationTime,
		TotalTime:       retrievalTime + generationTime,
	}
}

// diversitySelect greedily keeps candidates (already sorted most-similar
// first) whose cosine distance to every already-selected chunk exceeds
// theta, until topK is reached or candidates are exhausted. Candidates
// without a vector (an index backend that doesn't return one) are always
// accepted, since no distance can be computed for them.
func diversitySelect(candidates []ragtypes.RetrievedChunk, topK int, theta float64) []ragtypes.RetrievedChunk {
	selected := make([]ragtypes.RetrievedChunk, 0, topK)
	for _, c := range candidates {
		if len(selected) >= topK {
			break
		}
		if len(c.Vector) == 0 {
			selected = append(selected, c)
			continue
		}
		farEnough := true
		for _, s := range selected {
			if len(s.Vector) == 0 {
				continue
			}
			if cosineDistance(c.Vector, s.Vector) <= theta {
				farEnough = false
				break
			}
		}
		if farEnough {
			selected = append(selected, c)
		}
	}
	return selected
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	cosineSim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - cosineSim
}
