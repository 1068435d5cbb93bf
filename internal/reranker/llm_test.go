package reranker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScorer struct {
	responses map[string]string
	err       error
}

func (f *fakeScorer) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.responses[user], nil
}

func TestLLMReranker_OrdersByScore(t *testing.T) {
	docs := []Document{
		{ID: "low", Content: "irrelevant"},
		{ID: "high", Content: "very relevant"},
	}
	scorer := &fakeScorer{responses: map[string]string{
		"Query: q\n\nPassage: irrelevant":     "Score: 2",
		"Query: q\n\nPassage: very relevant": "9/10",
	}}

	r := NewLLMReranker(scorer)
	results, err := r.Rerank(context.Background(), "q", docs, 10)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].ID)
	assert.Equal(t, "low", results[1].ID)
	assert.InDelta(t, 0.9, results[0].RerankerScore, 0.001)
}

func TestLLMReranker_TopKLimits(t *testing.T) {
	docs := []Document{{ID: "a", Content: "a"}, {ID: "b", Content: "b"}, {ID: "c", Content: "c"}}
	scorer := &fakeScorer{responses: map[string]string{
		"Query: q\n\nPassage: a": "5",
		"Query: q\n\nPassage: b": "5",
		"Query: q\n\nPassage: c": "5",
	}}

	r := NewLLMReranker(scorer)
	results, err := r.Rerank(context.Background(), "q", docs, 2)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestLLMReranker_ScorerError(t *testing.T) {
	docs := []Document{{ID: "a", Content: "a"}}
	r := NewLLMReranker(&fakeScorer{err: errors.New("boom")})

	_, err := r.Rerank(context.Background(), "q", docs, 1)
	assert.Error(t, err)
}

func TestLLMReranker_NilContext(t *testing.T) {
	r := NewLLMReranker(&fakeScorer{})
	_, err := r.Rerank(nil, "q", []Document{{ID: "a"}}, 1)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw  string
		want float32
	}{
		{"7", 7},
		{"Score: 9", 9},
		{"8/10", 8},
		{"-3", 0},
		{"15", 10},
		{"no number here", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseScore(tt.raw))
	}
}
