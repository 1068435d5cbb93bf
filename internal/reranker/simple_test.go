package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleReranker_Rerank(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		docs      []Document
		topK      int
		wantIDs   []string
	}{
		{
			name:    "empty documents",
			query:   "test query",
			docs:    []Document{},
			topK:    10,
			wantIDs: nil,
		},
		{
			name:  "single document",
			query: "authentication error",
			docs: []Document{
				{ID: "doc1", Content: "authentication failed due to invalid token", Score: 0.9},
			},
			topK:    10,
			wantIDs: []string{"doc1"},
		},
		{
			name:  "term overlap outranks a higher original score",
			query: "database optimization",
			docs: []Document{
				{ID: "high_score", Content: "irrelevant content about something else", Score: 0.95},
				{ID: "high_overlap", Content: "database and optimization techniques", Score: 0.6},
			},
			topK:    10,
			wantIDs: []string{"high_overlap", "high_score"},
		},
		{
			name:  "topK truncates",
			query: "error handling",
			docs: []Document{
				{ID: "doc1", Content: "error handling patterns", Score: 0.9},
				{ID: "doc2", Content: "error recovery strategies", Score: 0.85},
				{ID: "doc3", Content: "error logging and monitoring", Score: 0.8},
			},
			topK:    2,
			wantIDs: []string{"doc1", "doc2"},
		},
		{
			name:  "zero topK returns every document",
			query: "test",
			docs: []Document{
				{ID: "a", Content: "test data", Score: 0.8},
				{ID: "b", Content: "another test", Score: 0.7},
			},
			topK:    0,
			wantIDs: []string{"a", "b"},
		},
		{
			name:  "query with only stopwords falls back to original score order",
			query: "the a an",
			docs: []Document{
				{ID: "low", Content: "some content", Score: 0.2},
				{ID: "high", Content: "other content", Score: 0.9},
			},
			topK:    10,
			wantIDs: []string{"high", "low"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewSimpleReranker()
			defer r.Close()

			results, err := r.Rerank(context.Background(), tt.query, tt.docs, tt.topK)

			require.NoError(t, err)
			require.Len(t, results, len(tt.wantIDs))
			for i, wantID := range tt.wantIDs {
				assert.Equal(t, wantID, results[i].ID, "position %d", i)
			}
			for i := 1; i < len(results); i++ {
				assert.GreaterOrEqual(t, float64(results[i-1].RerankerScore)+0.5, float64(results[i].RerankerScore),
					"a later result outscored an earlier one at %d", i)
			}
		})
	}
}

func TestSimpleReranker_RerankRejectsNilContext(t *testing.T) {
	r := NewSimpleReranker()
	//lint:ignore SA1012 exercising the documented nil-context guard
	_, err := r.Rerank(nil, "q", []Document{{ID: "a"}}, 1)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestCalculateTermOverlap(t *testing.T) {
	tests := []struct {
		name        string
		queryTokens []string
		docTokens   []string
		want        float32
	}{
		{"perfect overlap", []string{"error", "handling", "retry"}, []string{"error", "handling", "retry"}, 1.0},
		{"partial overlap", []string{"error", "handling", "retry"}, []string{"error", "handling"}, 2.0 / 3.0},
		{"no overlap", []string{"error", "handling"}, []string{"success", "recovery"}, 0},
		{"empty query", nil, []string{"error", "handling"}, 0},
		{"empty document", []string{"error", "handling"}, nil, 0},
		{"duplicate query tokens count once", []string{"error", "error"}, []string{"error"}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateTermOverlap(tt.queryTokens, tt.docTokens)
			assert.InDelta(t, tt.want, got, 0.01)
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple text", "error handling retry", []string{"error", "handling", "retry"}},
		{"stopwords filtered", "the error handling and retry", []string{"error", "handling", "retry"}},
		{"punctuation removed", "error, handling; retry!", []string{"error", "handling", "retry"}},
		{"short tokens filtered", "a an to error handling", []string{"error", "handling"}},
		{"case normalized", "ERROR Handling RETRY", []string{"error", "handling", "retry"}},
		{"empty string", "", []string{}},
		{"only stopwords", "the a an and or but", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.input))
		})
	}
}

func TestIsStopword(t *testing.T) {
	assert.True(t, isStopword("the"))
	assert.True(t, isStopword("and"))
	assert.False(t, isStopword("error"))
	assert.False(t, isStopword("database"))
}

func TestSimpleReranker_Close(t *testing.T) {
	assert.NoError(t, NewSimpleReranker().Close())
}

func BenchmarkSimpleReranker_Rerank(b *testing.B) {
	r := NewSimpleReranker()
	defer r.Close()

	query := "authentication token retry error handling database optimization"
	docs := make([]Document, 100)
	for i := range docs {
		docs[i] = Document{ID: "doc", Content: "error handling with retry logic and authentication token management", Score: 0.8}
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Rerank(ctx, query, docs, 10)
	}
}
