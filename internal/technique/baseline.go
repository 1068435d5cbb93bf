package technique

import (
	"context"
	"errors"
	"time"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/hwk-1212/rag-eval-project/internal/tracer"
)

// Baseline embeds the query once, similarity-searches the index for top_k
// chunks, and generates against the ordered context. Every other technique
// that needs a plain retrieve+generate pass calls into its helpers.
type Baseline struct {
	deps Deps
}

func (b *Baseline) Answer(ctx context.Context, query string, documentIDs []string, topK int, cfg ragtypes.RAGConfig) ragtypes.TechniqueResult {
	trc := tracer.New()
	return run(NameBaseline, trc, func() ragtypes.TechniqueResult {
		trc.Log("init", previewText(query, 100), map[string]any{"top_k": topK})
		return baselineRun(ctx, NameBaseline, b.deps, trc, query, query, documentIDs, topK)
	})
}

// baselineRun is the shared retrieve+generate body used verbatim by Baseline
// and, with a different retrieval query and/or answer query, by HyDE and the
// factual/contextual branches of Adaptive.
func baselineRun(ctx context.Context, techniqueName string, deps Deps, trc *tracer.Tracer, retrievalQuery, answerQuery string, documentIDs []string, topK int) ragtypes.TechniqueResult {
	retrievalStart := time.Now()
	trc.Log("retrieve_prepare", "embedding query", nil)

	if ctx.Err() != nil {
		trc.Log("retrieve_error", ctx.Err().Error(), nil)
		return errResult(techniqueName, trc, cancelOrTimeout(ctx))
	}

	vector, err := deps.Embedder.EmbedQuery(ctx, retrievalQuery)
	if err != nil {
		trc.Log("retrieve_error", err.Error(), nil)
		return errResult(techniqueName, trc, classifyRetrievalErr(ctx, err))
	}

	chunks, err := deps.Index.SimilaritySearch(ctx, vector, topK, filterFor(documentIDs))
	if err != nil {
		trc.Log("retrieve_error", err.Error(), nil)
		return errResult(techniqueName, trc, classifyRetrievalErr(ctx, err))
	}
	retrievalTime := time.Since(retrievalStart)

	trc.Log("retrieve_complete", "similarity search complete", map[string]any{
		"result_count": len(chunks),
		"top_scores":   topScores(chunks, 3),
	})

	answer, generationTime, errKind := generate(ctx, techniqueName, deps.LLM, trc, answerQuery, chunks)
	if errKind != ragtypes.ErrorKindNone {
		return errResult(techniqueName, trc, errKind)
	}

	return ragtypes.TechniqueResult{
		TechniqueName:   techniqueName,
		AnswerText:      answer,
		RetrievedChunks: chunks,
		Trace:           trc.Events(),
		RetrievalTime:   retrievalTime,
		GenerationTime:  generationTime,
		TotalTime:       retrievalTime + generationTime,
	}
}

// generate runs the shared generate_prepare_context / generate_llm_call /
// generate_complete trace triad and returns the answer, the generation
// duration, and an error kind (ragtypes.ErrorKindNone on success).
func generate(ctx context.Context, techniqueName string, llm Completer, trc *tracer.Tracer, query string, chunks []ragtypes.RetrievedChunk) (string, time.Duration, ragtypes.ErrorKind) {
	contextText := formatContext(chunks)
	trc.Log("generate_prepare_context", "formatted context", map[string]any{
		"doc_count":            len(chunks),
		"total_context_length": contextLength(chunks),
	})

	if ctx.Err() != nil {
		trc.Log("generate_error", ctx.Err().Error(), nil)
		return "", 0, cancelOrTimeout(ctx)
	}

	trc.Log("generate_llm_call", "requesting completion", nil)
	genStart := time.Now()
	answer, err := llm.Complete(ctx, answerSystemPrompt, generationPrompt(query, contextText), 0.2, 512)
	genTime := time.Since(genStart)
	if err != nil {
		trc.Log("generate_error", err.Error(), nil)
		return "", genTime, classifyLLMErr(ctx, err)
	}

	trc.Log("generate_complete", "answer produced", map[string]any{
		"answer_length":  len(answer),
		"answer_preview": previewText(answer, 150),
	})
	return answer, genTime, ragtypes.ErrorKindNone
}

func cancelOrTimeout(ctx context.Context) ragtypes.ErrorKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ragtypes.ErrorKindTimeout
	}
	return ragtypes.ErrorKindCanceled
}

func classifyRetrievalErr(ctx context.Context, err error) ragtypes.ErrorKind {
	if ctx.Err() != nil {
		return cancelOrTimeout(ctx)
	}
	return ragtypes.ErrorKindRetrievalFailed
}

func classifyLLMErr(ctx context.Context, err error) ragtypes.ErrorKind {
	if ctx.Err() != nil {
		return cancelOrTimeout(ctx)
	}
	return ragtypes.ErrorKindLLMFailed
}
