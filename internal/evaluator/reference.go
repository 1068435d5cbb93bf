package evaluator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hwk-1212/rag-eval-project/internal/logging"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"go.uber.org/zap"
)

// Embedder is the subset of embeddings.Service the reference-metric evaluator
// depends on for answer_relevancy's back-question similarity.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

const (
	defaultBackQuestions    = 3
	defaultReferenceTimeout = 300 * time.Second
)

// ErrReferenceEvaluatorClosed is returned by Evaluate once Close has run.
var ErrReferenceEvaluatorClosed = errors.New("evaluator: reference-metric evaluator is closed")

type referenceJob struct {
	ctx       context.Context
	query     string
	answer    string
	contexts  []string
	refAnswer *string
	reply     chan referenceReply
}

type referenceReply struct {
	score ragtypes.EvaluationScore
	err   error
}

// ReferenceEvaluator is the Reference-Metric Evaluator. Every call to
// Evaluate is serialized onto a single dedicated goroutine with its own job
// queue, started once at construction and reused for the evaluator's whole
// lifetime — the analogue of giving a library that assumes exclusive control
// of the ambient scheduler its own private one, instead of ever calling it
// from a caller-spawned goroutine or an arbitrary pool worker.
type ReferenceEvaluator struct {
	llm      Completer
	embedder Embedder
	logger   *logging.Logger

	jobs   chan referenceJob
	done   chan struct{}
	closed chan struct{}
}

// NewReferenceEvaluator starts the dedicated worker goroutine and returns an
// evaluator ready for concurrent Evaluate calls; the worker itself processes
// jobs strictly one at a time regardless of how many callers submit at once.
func NewReferenceEvaluator(llm Completer, embedder Embedder, logger *logging.Logger) *ReferenceEvaluator {
	e := &ReferenceEvaluator{
		llm:      llm,
		embedder: embedder,
		logger:   logger,
		jobs:     make(chan referenceJob),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go e.worker()
	return e
}

// Close stops the worker goroutine. Evaluate calls made after Close returns
// ErrReferenceEvaluatorClosed.
func (e *ReferenceEvaluator) Close() {
	select {
	case <-e.closed:
		return
	default:
		close(e.closed)
	}
	<-e.done
}

func (e *ReferenceEvaluator) worker() {
	defer close(e.done)
	for {
		select {
		case job := <-e.jobs:
			job.reply <- e.run(job)
		case <-e.closed:
			return
		}
	}
}

// Evaluate computes faithfulness and answer_relevancy, plus context_precision
// and context_recall when referenceAnswer is non-nil. timeout bounds how long
// the caller waits for the worker's reply; a zero timeout uses the default.
func (e *ReferenceEvaluator) Evaluate(ctx context.Context, query, answer string, contexts []string, referenceAnswer *string, timeout time.Duration) (ragtypes.EvaluationScore, error) {
	if timeout <= 0 {
		timeout = defaultReferenceTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	job := referenceJob{
		ctx:       callCtx,
		query:     query,
		answer:    answer,
		contexts:  contexts,
		refAnswer: referenceAnswer,
		reply:     make(chan referenceReply, 1),
	}

	select {
	case e.jobs <- job:
	case <-callCtx.Done():
		return ragtypes.EvaluationScore{}, callCtx.Err()
	case <-e.closed:
		return ragtypes.EvaluationScore{}, ErrReferenceEvaluatorClosed
	}

	select {
	case r := <-job.reply:
		return r.score, r.err
	case <-callCtx.Done():
		return ragtypes.EvaluationScore{}, callCtx.Err()
	}
}

func (e *ReferenceEvaluator) run(job referenceJob) referenceReply {
	metrics := make(map[string]float64, 4)

	faithfulness, err := e.faithfulness(job.ctx, job.answer, job.contexts)
	if err != nil {
		return referenceReply{err: fmt.Errorf("evaluator: faithfulness: %w", err)}
	}
	metrics["faithfulness"] = faithfulness

	relevancy, err := e.answerRelevancy(job.ctx, job.query, job.answer)
	if err != nil {
		return referenceReply{err: fmt.Errorf("evaluator: answer_relevancy: %w", err)}
	}
	metrics["answer_relevancy"] = relevancy

	if job.refAnswer != nil {
		precision, recall, err := e.contextMetrics(job.ctx, job.query, job.contexts, *job.refAnswer)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn(job.ctx, "evaluator: reference-conditioned metrics failed", zap.Error(err))
			}
		} else {
			metrics["context_precision"] = precision
			metrics["context_recall"] = recall
		}
	}

	overall := mean(metrics)
	return referenceReply{score: ragtypes.EvaluationScore{
		ScoreType:     ragtypes.ScoreTypeReferenceMetric,
		OverallScore:  &overall,
		EvaluatorName: "reference_metric",
		Metadata:      map[string]any{"reference_scores": toAnyMap(metrics)},
	}}
}

// faithfulness asks the LLM what fraction of the answer's atomic claims are
// supported by the retrieved contexts, returned directly as [0, 1].
func (e *ReferenceEvaluator) faithfulness(ctx context.Context, answer string, contexts []string) (float64, error) {
	if len(contexts) == 0 {
		return 0, nil
	}
	system := "You judge how well an answer's claims are supported by the given context. " +
		"Respond with a single decimal fraction between 0 and 1: the proportion of the " +
		"answer's factual claims that are directly supported by the context. No other text."
	user := fmt.Sprintf("Context:\n%s\n\nAnswer:\n%s\n\nSupported fraction (0-1):",
		strings.Join(contexts, "\n---\n"), answer)

	reply, err := e.llm.Complete(ctx, system, user, 0, 32)
	if err != nil {
		return 0, err
	}
	return parseFraction(reply), nil
}

// answerRelevancy asks the LLM to reconstruct N back-questions the answer
// would be a good response to, embeds each alongside the original query, and
// averages the pairwise cosine similarities.
func (e *ReferenceEvaluator) answerRelevancy(ctx context.Context, query, answer string) (float64, error) {
	questions, err := e.backQuestions(ctx, answer, defaultBackQuestions)
	if err != nil {
		return 0, err
	}
	if len(questions) == 0 {
		return 0, nil
	}

	queryVec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return 0, err
	}

	var sum float64
	for _, q := range questions {
		vec, err := e.embedder.EmbedQuery(ctx, q)
		if err != nil {
			return 0, err
		}
		sum += cosineSimilarity(queryVec, vec)
	}
	return sum / float64(len(questions)), nil
}

func (e *ReferenceEvaluator) backQuestions(ctx context.Context, answer string, n int) ([]string, error) {
	system := fmt.Sprintf(
		"Given an answer, write %d distinct questions that the answer directly responds to. "+
			"Reply with exactly %d lines, one question per line, no numbering.", n, n)
	reply, err := e.llm.Complete(ctx, system, "Answer:\n"+answer, 0.3, 256)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// contextMetrics computes context_precision and context_recall against a
// reference answer, both on [0, 1]. Skipped entirely by the caller when no
// reference answer is supplied.
func (e *ReferenceEvaluator) contextMetrics(ctx context.Context, query string, contexts []string, referenceAnswer string) (precision, recall float64, err error) {
	system := "You judge retrieval quality against a reference answer. " +
		"Reply with exactly two decimal fractions between 0 and 1, separated by a comma: " +
		"precision (fraction of the context that is relevant to producing the reference answer), " +
		"then recall (fraction of the reference answer's content that is covered by the context). No other text."
	user := fmt.Sprintf("Query: %s\n\nContext:\n%s\n\nReference answer:\n%s\n\nprecision,recall:",
		query, strings.Join(contexts, "\n---\n"), referenceAnswer)

	reply, err := e.llm.Complete(ctx, system, user, 0, 32)
	if err != nil {
		return 0, 0, err
	}
	parts := strings.SplitN(reply, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("evaluator: could not parse precision/recall from %q", reply)
	}
	return parseFraction(parts[0]), parseFraction(parts[1]), nil
}

func parseFraction(text string) float64 {
	v, ok := parseScore(text)
	if !ok {
		return 0
	}
	if v > 1 {
		// tolerate a model replying on a 0-10 scale despite instructions
		v = v / 10
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func toAnyMap(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
