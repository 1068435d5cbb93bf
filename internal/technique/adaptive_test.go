package technique

import (
	"context"
	"testing"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptive_RoutesFactualToRewrite(t *testing.T) {
	llm := &fakeLLM{
		responses: []fakeLLMResponse{
			{contains: classifySystemPrompt, response: "factual"},
			{contains: "Rewrite the user's question", response: "rewritten query"},
		},
		def: "answer",
	}
	idx := &fakeIndex{dim: 3, chunks: []ragtypes.RetrievedChunk{{ChunkID: "c1", Text: "x", Score: 1}}}
	a := &Adaptive{deps: Deps{Index: idx, LLM: llm, Embedder: newFakeEmbedder(3)}}

	result := a.Answer(context.Background(), "when was france founded?", nil, 1, ragtypes.DefaultRAGConfig())

	require.Equal(t, ragtypes.ErrorKindNone, result.ErrorKind)
	assert.Equal(t, NameAdaptive, result.TechniqueName)
}

func TestAdaptive_RoutesOpinionToDiversitySelection(t *testing.T) {
	llm := &fakeLLM{responses: []fakeLLMResponse{
		{contains: classifySystemPrompt, response: "opinion"},
	}, def: "answer"}
	idx := &fakeIndex{dim: 2, chunks: []ragtypes.RetrievedChunk{
		{ChunkID: "a", Text: "x", Score: 0.9, Vector: []float32{1, 0}},
		{ChunkID: "b", Text: "y", Score: 0.8, Vector: []float32{1, 0}}, // near-duplicate of a
		{ChunkID: "c", Text: "z", Score: 0.7, Vector: []float32{0, 1}}, // orthogonal
	}}
	a := &Adaptive{deps: Deps{Index: idx, LLM: llm, Embedder: newFakeEmbedder(2)}}

	result := a.Answer(context.Background(), "what do people think about x?", nil, 2, ragtypes.DefaultRAGConfig())

	require.Equal(t, ragtypes.ErrorKindNone, result.ErrorKind)
	ids := []string{}
	for _, c := range result.RetrievedChunks {
		ids = append(ids, c.ChunkID)
	}
	assert.Contains(t, ids, "a")
	assert.Contains(t, ids, "c")
	assert.NotContains(t, ids, "b")
}

func TestDiversitySelect_AcceptsVectorlessCandidates(t *testing.T) {
	candidates := []ragtypes.RetrievedChunk{{ChunkID: "a"}, {ChunkID: "b"}}
	selected := diversitySelect(candidates, 2, 0.15)
	assert.Len(t, selected, 2)
}

func TestCosineDistance_IdenticalVectorsAreZero(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 2, 3}, []float32{1, 2, 3}), 0.0001)
}

func TestCosineDistance_MismatchedLengthIsMaximal(t *testing.T) {
	assert.Equal(t, 1.0, cosineDistance([]float32{1, 2}, []float32{1, 2, 3}))
}
