package technique

import (
	"context"
	"testing"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryTransform_RewriteMode(t *testing.T) {
	llm := &fakeLLM{
		responses: []fakeLLMResponse{
			{contains: "Rewrite the user's question", response: "What city is the capital of France?"},
		},
		def: "Paris.",
	}
	idx := &fakeIndex{dim: 3, chunks: []ragtypes.RetrievedChunk{{ChunkID: "c1", Text: "Paris.", Score: 0.9}}}
	cfg := ragtypes.DefaultRAGConfig()
	cfg.TransformationType = "rewrite"
	qt := &QueryTransform{deps: Deps{Index: idx, LLM: llm, Embedder: newFakeEmbedder(3)}}

	result := qt.Answer(context.Background(), "capital of france?", nil, 1, cfg)

	require.Equal(t, ragtypes.ErrorKindNone, result.ErrorKind)
	assert.Equal(t, "Paris.", result.AnswerText)
}

func TestQueryTransform_DecomposeDedupesByChunkIDKeepingMaxScore(t *testing.T) {
	llm := &fakeLLM{
		responses: []fakeLLMResponse{
			{contains: "Break the user's question", response: "sub one\nsub two\nsub three"},
		},
		def: "final answer",
	}
	idx := &fakeIndex{dim: 3, chunks: []ragtypes.RetrievedChunk{
		{ChunkID: "shared", Text: "shared chunk", Score: 0.4},
		{ChunkID: "unique", Text: "unique chunk", Score: 0.3},
	}}
	cfg := ragtypes.DefaultRAGConfig()
	cfg.TransformationType = "decompose"
	cfg.NumSubqueries = 3
	qt := &QueryTransform{deps: Deps{Index: idx, LLM: llm, Embedder: newFakeEmbedder(3)}}

	result := qt.Answer(context.Background(), "original question", nil, 5, cfg)

	require.Equal(t, ragtypes.ErrorKindNone, result.ErrorKind)
	// every sub-query retrieves the same 2 chunks; dedup must collapse them
	// to exactly 2 entries, not 6.
	assert.Len(t, result.RetrievedChunks, 2)
}

func TestParseLines_CapsAtN(t *testing.T) {
	lines := parseLines("a\nb\nc\nd", 2)
	assert.Equal(t, []string{"a", "b"}, lines)
}

func TestParseLines_FallsBackToRawWhenNoLines(t *testing.T) {
	lines := parseLines("   \n  ", 3)
	assert.Equal(t, []string{"   \n  "}, lines)
}
