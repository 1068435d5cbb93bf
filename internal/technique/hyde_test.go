package technique

import (
	"context"
	"testing"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHyDE_EmbedsHypotheticalDocumentButAnswersOriginalQuery(t *testing.T) {
	llm := &fakeLLM{
		responses: []fakeLLMResponse{
			{contains: "Write a short, plausible passage", response: "Paris is the capital of France, located on the Seine."},
		},
		def: "The capital of France is Paris.",
	}
	embedder := newFakeEmbedder(3)
	embedder.vectors["Paris is the capital of France, located on the Seine."] = []float32{1, 0, 0}
	idx := &fakeIndex{dim: 3, chunks: []ragtypes.RetrievedChunk{
		{ChunkID: "c1", Text: "Paris is the capital of France.", Score: 0.9},
	}}
	h := &HyDE{deps: Deps{Index: idx, LLM: llm, Embedder: embedder}}

	result := h.Answer(context.Background(), "What is the capital of France?", nil, 1, ragtypes.DefaultRAGConfig())

	require.Equal(t, ragtypes.ErrorKindNone, result.ErrorKind)
	assert.Contains(t, result.AnswerText, "Paris")

	var sawHydeDoc bool
	for _, ev := range result.Trace {
		if ev.StepName == "hyde_document" {
			sawHydeDoc = true
		}
	}
	assert.True(t, sawHydeDoc)
}
