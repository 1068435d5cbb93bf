package technique

import (
	"context"
	"fmt"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/hwk-1212/rag-eval-project/internal/tracer"
)

const hydeSystemPrompt = "Write a short, plausible passage that would answer the following question, as if it were an excerpt from a reference document. Do not mention that this is hypothetical."

// HyDE (Hypothetical Document Embedding) generates a plausible answer
// paragraph, embeds that instead of the query, retrieves against it, then
// generates the real answer against the original query.
type HyDE struct {
	deps Deps
}

func (h *HyDE) Answer(ctx context.Context, query string, documentIDs []string, topK int, cfg ragtypes.RAGConfig) ragtypes.TechniqueResult {
	trc := tracer.New()
	return run(NameHyDE, trc, func() ragtypes.TechniqueResult {
		trc.Log("init", previewText(query, 100), map[string]any{"top_k": topK})

		temperature := cfg.HydeTemperature
		if temperature <= 0 {
			temperature = 0.7
		}

		if ctx.Err() != nil {
			trc.Log("hyde_generate_error", ctx.Err().Error(), nil)
			return errResult(NameHyDE, trc, cancelOrTimeout(ctx))
		}

		hypothetical, err := h.deps.LLM.Complete(ctx, hydeSystemPrompt, fmt.Sprintf("Question: %s", query), temperature, 256)
		if err != nil {
			trc.Log("hyde_generate_error", err.Error(), nil)
			return errResult(NameHyDE, trc, classifyLLMErr(ctx, err))
		}
		trc.Log("hyde_document", "generated hypothetical document", map[string]any{
			"preview": previewText(hypothetical, 150),
		})

		return baselineRun(ctx, NameHyDE, h.deps, trc, hypothetical, query, documentIDs, topK)
	})
}
