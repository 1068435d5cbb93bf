package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	reply func(system, user string) (string, error)
}

func (s *stubLLM) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	return s.reply(system, user)
}

func TestDimensionalEvaluator_AveragesFiveDimensions(t *testing.T) {
	llm := &stubLLM{reply: func(system, user string) (string, error) {
		return "8 - solid answer", nil
	}}
	e := NewDimensionalEvaluator(llm, nil)

	score := e.Evaluate(context.Background(), "q", "a", []string{"ctx"})

	require.Len(t, score.Dimensions, 5)
	require.NotNil(t, score.OverallScore)
	assert.InDelta(t, 8.0, *score.OverallScore, 0.0001)
}

func TestDimensionalEvaluator_SkipsFaithfulnessWithoutContext(t *testing.T) {
	llm := &stubLLM{reply: func(system, user string) (string, error) {
		return "6", nil
	}}
	e := NewDimensionalEvaluator(llm, nil)

	score := e.Evaluate(context.Background(), "q", "a", nil)

	require.Len(t, score.Dimensions, 4)
	_, ok := score.Dimensions["faithfulness"]
	assert.False(t, ok)
}

func TestDimensionalEvaluator_UnparsableReplyScoresZero(t *testing.T) {
	llm := &stubLLM{reply: func(system, user string) (string, error) {
		return "I decline to answer with a number", nil
	}}
	e := NewDimensionalEvaluator(llm, nil)

	score := e.Evaluate(context.Background(), "q", "a", []string{"ctx"})

	assert.Equal(t, 0.0, score.Dimensions["relevance"])
}

func TestDimensionalEvaluator_LLMErrorScoresZeroForThatDimension(t *testing.T) {
	llm := &stubLLM{reply: func(system, user string) (string, error) {
		return "", errors.New("upstream down")
	}}
	e := NewDimensionalEvaluator(llm, nil)

	score := e.Evaluate(context.Background(), "q", "a", []string{"ctx"})

	require.NotNil(t, score.OverallScore)
	assert.Equal(t, 0.0, *score.OverallScore)
}

func TestParseScore_ClampsToTenRange(t *testing.T) {
	v, ok := parseScore("15 out of 10, exceptional")
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestParseScore_NoNumberFound(t *testing.T) {
	_, ok := parseScore("no digits here")
	assert.False(t, ok)
}
