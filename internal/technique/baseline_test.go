package technique

import (
	"context"
	"testing"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseline_HappyPath(t *testing.T) {
	idx := &fakeIndex{dim: 3, chunks: []ragtypes.RetrievedChunk{
		{ChunkID: "c1", Text: "Paris is the capital of France.", Score: 0.9},
		{ChunkID: "c2", Text: "Berlin is in Germany.", Score: 0.3},
		{ChunkID: "c3", Text: "The Seine runs through Paris.", Score: 0.7},
	}}
	llm := &fakeLLM{def: "The capital of France is Paris."}
	baseline := &Baseline{deps: Deps{Index: idx, LLM: llm, Embedder: newFakeEmbedder(3)}}

	result := baseline.Answer(context.Background(), "What is the capital of France?", nil, 2, ragtypes.DefaultRAGConfig())

	require.Equal(t, ragtypes.ErrorKindNone, result.ErrorKind)
	require.Len(t, result.RetrievedChunks, 2)
	assert.Equal(t, "c1", result.RetrievedChunks[0].ChunkID)
	assert.Equal(t, "c3", result.RetrievedChunks[1].ChunkID)
	assert.Contains(t, result.AnswerText, "Paris")

	var sawRetrieveComplete bool
	for _, ev := range result.Trace {
		if ev.StepName == "retrieve_complete" {
			sawRetrieveComplete = true
			assert.Equal(t, 2, ev.Details["result_count"])
		}
	}
	assert.True(t, sawRetrieveComplete)
}

func TestBaseline_RetrievalFailure(t *testing.T) {
	idx := &fakeIndex{dim: 3, err: errFakeIndex}
	llm := &fakeLLM{def: "unused"}
	baseline := &Baseline{deps: Deps{Index: idx, LLM: llm, Embedder: newFakeEmbedder(3)}}

	result := baseline.Answer(context.Background(), "any query", nil, 2, ragtypes.DefaultRAGConfig())

	assert.Equal(t, ragtypes.ErrorKindRetrievalFailed, result.ErrorKind)
	assert.Empty(t, result.AnswerText)
}

func TestBaseline_TraceSequenceIsMonotonic(t *testing.T) {
	idx := &fakeIndex{dim: 3, chunks: []ragtypes.RetrievedChunk{{ChunkID: "c1", Text: "x", Score: 1}}}
	llm := &fakeLLM{def: "answer"}
	baseline := &Baseline{deps: Deps{Index: idx, LLM: llm, Embedder: newFakeEmbedder(3)}}

	result := baseline.Answer(context.Background(), "q", nil, 1, ragtypes.DefaultRAGConfig())

	for i, ev := range result.Trace {
		assert.Equal(t, i, ev.Sequence)
	}
}
