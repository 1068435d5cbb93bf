package technique

import (
	"context"
	"testing"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfReflective_NoRetrievalNeeded(t *testing.T) {
	llm := &fakeLLM{
		responses: []fakeLLMResponse{
			{contains: "require looking up external documents", response: "no"},
		},
		def: "I am a helpful assistant.",
	}
	idx := &fakeIndex{dim: 3}
	sr := &SelfReflective{deps: Deps{Index: idx, LLM: llm, Embedder: newFakeEmbedder(3)}}

	result := sr.Answer(context.Background(), "Hello, who are you?", nil, 5, ragtypes.DefaultRAGConfig())

	require.Equal(t, ragtypes.ErrorKindNone, result.ErrorKind)
	assert.Empty(t, result.RetrievedChunks)
	assert.NotEmpty(t, result.AnswerText)

	var found bool
	for _, ev := range result.Trace {
		if ev.StepName == "self_rag_retrieval_decision" {
			found = true
			assert.Equal(t, false, ev.Details["needs_retrieval"])
		}
	}
	assert.True(t, found)
}

func TestSelfReflective_RetrievesAndFiltersRelevance(t *testing.T) {
	llm := &fakeLLM{
		responses: []fakeLLMResponse{
			{contains: "require looking up external documents", response: "yes"},
			{contains: "Passage: irrelevant filler", response: "not_relevant"},
			{contains: "Passage: Paris is the capital of France.", response: "fully_relevant"},
			{contains: "fully follow from the context", response: "fully"},
			{contains: "how useful this answer", response: "4"},
		},
		def: "Paris is the capital of France.",
	}
	idx := &fakeIndex{dim: 3, chunks: []ragtypes.RetrievedChunk{
		{ChunkID: "c1", Text: "Paris is the capital of France.", Score: 0.9},
		{ChunkID: "c2", Text: "irrelevant filler content", Score: 0.5},
	}}
	sr := &SelfReflective{deps: Deps{Index: idx, LLM: llm, Embedder: newFakeEmbedder(3)}}

	result := sr.Answer(context.Background(), "What is the capital of France?", nil, 2, ragtypes.DefaultRAGConfig())

	require.Equal(t, ragtypes.ErrorKindNone, result.ErrorKind)
	require.Len(t, result.RetrievedChunks, 1)
	assert.Equal(t, "c1", result.RetrievedChunks[0].ChunkID)
	assert.NotEmpty(t, result.AnswerText)
}
