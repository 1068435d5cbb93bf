package technique

import (
	"context"
	"sort"
	"time"

	"github.com/hwk-1212/rag-eval-project/internal/lexical"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/hwk-1212/rag-eval-project/internal/tracer"
)

// Fusion combines vector and lexical (BM25) rankings over the same candidate
// set via min-max normalized weighted sum.
type Fusion struct {
	deps Deps
}

func (f *Fusion) Answer(ctx context.Context, query string, documentIDs []string, topK int, cfg ragtypes.RAGConfig) ragtypes.TechniqueResult {
	trc := tracer.New()
	return run(NameFusion, trc, func() ragtypes.TechniqueResult {
		wVec, wLex := cfg.VectorWeight, cfg.LexicalWeight
		if wVec == 0 && wLex == 0 {
			wVec, wLex = 0.5, 0.5
		}

		widerK := topK
		if widerK < 10 {
			widerK = 10
		}
		trc.Log("init", previewText(query, 100), map[string]any{"top_k": topK, "wider_k": widerK})

		retrievalStart := time.Now()
		trc.Log("retrieve_prepare", "embedding query", nil)

		if ctx.Err() != nil {
			trc.Log("retrieve_error", ctx.Err().Error(), nil)
			return errResult(NameFusion, trc, cancelOrTimeout(ctx))
		}

		vector, err := f.deps.Embedder.EmbedQuery(ctx, query)
		if err != nil {
			trc.Log("retrieve_error", err.Error(), nil)
			return errResult(NameFusion, trc, classifyRetrievalErr(ctx, err))
		}

		candidates, err := f.deps.Index.SimilaritySearch(ctx, vector, widerK, filterFor(documentIDs))
		if err != nil {
			trc.Log("retrieve_error", err.Error(), nil)
			return errResult(NameFusion, trc, classifyRetrievalErr(ctx, err))
		}
		trc.Log("retrieve_complete", "wider vector search complete", map[string]any{
			"result_count": len(candidates),
			"top_scores":   topScores(candidates, 3),
		})

		docs := make([]lexical.Doc, len(candidates))
		for i, c := range candidates {
			docs[i] = lexical.Doc{ID: c.ChunkID, Text: c.Text}
		}
		lexIndex := lexical.New(docs)
		lexScores := lexIndex.Score(query)

		vecScores := make(map[string]float64, len(candidates))
		for _, c := range candidates {
			vecScores[c.ChunkID] = c.Score
		}

		normVec := minMaxNormalize(vecScores)
		normLex := minMaxNormalize(lexScores)

		overlap := 0
		for id := range normVec {
			if _, ok := normLex[id]; ok {
				overlap++
			}
		}
		trc.Log("fusion_merge", "merged vector and lexical rankings", map[string]any{
			"overlap_count":  overlap,
			"candidate_count": len(candidates),
			"w_vec":          wVec,
			"w_lex":          wLex,
		})

		for i, c := range candidates {
			candidates[i].VectorScore = normVec[c.ChunkID]
			candidates[i].LexicalScore = normLex[c.ChunkID]
			candidates[i].Score = wVec*normVec[c.ChunkID] + wLex*normLex[c.ChunkID]
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Score > candidates[j].Score
		})

		limit := topK
		if limit > len(candidates) {
			limit = len(candidates)
		}
		final := candidates[:limit]
		retrievalTime := time.Since(retrievalStart)

		answer, generationTime, errKind := generate(ctx, NameFusion, f.deps.LLM, trc, query, final)
		if errKind != ragtypes.ErrorKindNone {
			return errResult(NameFusion, trc, errKind)
		}

		return ragtypes.TechniqueResult{
			TechniqueName:   NameFusion,
			AnswerText:      answer,
			RetrievedChunks: final,
			Trace:           trc.Events(),
			RetrievalTime:   retrievalTime,
			GenerationTime:  generationTime,
			TotalTime:       retrievalTime + generationTime,
		}
	})
}

// minMaxNormalize rescales scores to [0, 1]. A degenerate distribution (all
// equal, or a single element) maps everything to 1 rather than dividing by
// zero.
func minMaxNormalize(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	if len(scores) == 0 {
		return out
	}

	min, max := 0.0, 0.0
	first := true
	for _, s := range scores {
		if first {
			min, max = s, s
			first = false
			continue
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	span := max - min
	for id, s := range scores {
		if span == 0 {
			out[id] = 1
			continue
		}
		out[id] = (s - min) / span
	}
	return out
}
