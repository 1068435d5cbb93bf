// Package evaluator implements the two scoring backends, dimensional and
// reference-metric, and the batch dispatcher that runs them over persisted
// QA records.
package evaluator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hwk-1212/rag-eval-project/internal/logging"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"go.uber.org/zap"
)

// Completer is the subset of llmclient.Client the dimensional evaluator
// depends on.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error)
}

// dimensions is the fixed scoring rubric, in the order LLM calls are issued.
var dimensions = []string{"relevance", "faithfulness", "coherence", "fluency", "conciseness"}

// scoreExtractor pulls the first number (integer or decimal) out of a
// free-text LLM reply; parseScore clamps it to [0, 10].
var scoreExtractor = regexp.MustCompile(`\d+(\.\d+)?`)

// DimensionalEvaluator is the LLM Dimensional Evaluator: it issues one
// completion per rubric dimension and averages the results it can parse.
type DimensionalEvaluator struct {
	llm    Completer
	logger *logging.Logger
}

// NewDimensionalEvaluator constructs a DimensionalEvaluator over an LLM
// client. logger may be nil.
func NewDimensionalEvaluator(llm Completer, logger *logging.Logger) *DimensionalEvaluator {
	return &DimensionalEvaluator{llm: llm, logger: logger}
}

// Evaluate scores one answer across the fixed dimension rubric. faithfulness
// is skipped and excluded from the mean when contexts is empty, since a
// pure-LLM answer (e.g. self-reflective's fallback path) has nothing to be
// faithful to.
func (e *DimensionalEvaluator) Evaluate(ctx context.Context, query, answer string, contexts []string) ragtypes.EvaluationScore {
	scores := make(map[string]float64, len(dimensions))
	var feedback []string

	for _, dim := range dimensions {
		if dim == "faithfulness" && len(contexts) == 0 {
			continue
		}
		score, _ := e.scoreDimension(ctx, dim, query, answer, contexts)
		scores[dim] = score
		feedback = append(feedback, fmt.Sprintf("%s=%.1f", dim, score))
	}

	overall := mean(scores)
	return ragtypes.EvaluationScore{
		ScoreType:     ragtypes.ScoreTypeLLMDimensional,
		Dimensions:    scores,
		OverallScore:  &overall,
		EvaluatorName: "llm_dimensional",
		Metadata:      map[string]any{"feedback": strings.Join(feedback, " | ")},
	}
}

func (e *DimensionalEvaluator) scoreDimension(ctx context.Context, dim, query, answer string, contexts []string) (float64, string) {
	system, user := dimensionPrompt(dim, query, answer, contexts)
	reply, err := e.llm.Complete(ctx, system, user, 0, 128)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn(ctx, "evaluator: dimension scoring call failed",
				zap.String("dimension", dim), zap.Error(err))
		}
		return 0, ""
	}
	score, ok := parseScore(reply)
	if !ok {
		if e.logger != nil {
			e.logger.Warn(ctx, "evaluator: could not extract score from reply",
				zap.String("dimension", dim), zap.String("reply", reply))
		}
		return 0, reply
	}
	return score, reply
}

// parseScore extracts the first number in text and clamps it to [0, 10].
func parseScore(text string) (float64, bool) {
	match := scoreExtractor.FindString(text)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	if v < 0 {
		v = 0
	}
	if v > 10 {
		v = 10
	}
	return v, true
}

func mean(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, v := range scores {
		sum += v
	}
	return sum / float64(len(scores))
}

var dimensionRubric = map[string]string{
	"relevance":    "how directly the answer addresses the question",
	"faithfulness": "whether the answer is supported by the provided context, without unsupported additions",
	"coherence":    "logical structure and internal consistency of the answer",
	"fluency":      "grammatical correctness and readability of the answer",
	"conciseness":  "absence of redundant or padded content in the answer",
}

func dimensionPrompt(dim, query, answer string, contexts []string) (system, user string) {
	system = fmt.Sprintf(
		"You are a strict evaluator scoring one dimension of a generated answer: %s (%s). "+
			"Respond with an integer from 0 to 10, followed by a one-sentence justification. "+
			"0 means the answer completely fails this dimension, 10 means it fully satisfies it.",
		dim, dimensionRubric[dim],
	)

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	if dim == "faithfulness" {
		fmt.Fprintf(&b, "Context:\n%s\n\n", strings.Join(contexts, "\n---\n"))
	}
	fmt.Fprintf(&b, "Answer: %s\n\nScore (0-10):", answer)
	return system, b.String()
}
