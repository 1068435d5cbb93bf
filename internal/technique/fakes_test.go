package technique

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/hwk-1212/rag-eval-project/internal/index"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
)

// fakeLLM answers deterministically based on a substring match against the
// user prompt, falling back to a default response. It never talks to a
// network, matching the house preference for hand-rolled fakes over mocks.
type fakeLLM struct {
	responses []fakeLLMResponse
	def       string
	err       error
	calls     int
}

type fakeLLMResponse struct {
	contains string
	response string
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	f.calls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	for _, r := range f.responses {
		if strings.Contains(user, r.contains) || strings.Contains(system, r.contains) {
			return r.response, nil
		}
	}
	return f.def, nil
}

// fakeEmbedder returns a fixed vector per known text, or a zero vector for
// anything unrecognized.
type fakeEmbedder struct {
	vectors map[string][]float32
	dim     int
	err     error
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{}, dim: dim}
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, f.dim), nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// fakeIndex is an in-memory, similarity-by-precomputed-score stand-in for
// index.Index, so technique tests can pin down retrieval ordering exactly.
type fakeIndex struct {
	chunks []ragtypes.RetrievedChunk
	err    error
	dim    int
}

var errFakeIndex = errors.New("fake index failure")

func (f *fakeIndex) Upsert(ctx context.Context, chunks []ragtypes.EmbeddedChunk) error { return nil }

func (f *fakeIndex) SimilaritySearch(ctx context.Context, queryVector []float32, k int, filter index.Filter) ([]ragtypes.RetrievedChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ragtypes.RetrievedChunk, len(f.chunks))
	copy(out, f.chunks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func (f *fakeIndex) DeleteByDocument(ctx context.Context, documentID string) error { return nil }
func (f *fakeIndex) Dimension() int                                                { return f.dim }
func (f *fakeIndex) Close() error                                                  { return nil }

var _ index.Index = (*fakeIndex)(nil)
