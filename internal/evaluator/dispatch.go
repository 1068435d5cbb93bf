package evaluator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hwk-1212/rag-eval-project/internal/logging"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/hwk-1212/rag-eval-project/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/hwk-1212/rag-eval-project/internal/evaluator")

const (
	defaultEvalConcurrency = 2
	minEvalConcurrency     = 1
	maxEvalConcurrency     = 5
)

// Recorder is the subset of store.Store the dispatcher reads QARecords from
// and writes EvaluationScores to.
type Recorder interface {
	GetQARecord(ctx context.Context, id string) (*ragtypes.QARecord, error)
	SaveEvaluation(ctx context.Context, e *ragtypes.EvaluationScore) error
}

var _ Recorder = (*store.Store)(nil)

// RecordResult is one QARecord's outcome from a batch evaluation: at most one
// score per evaluator kind that was requested, plus an error kind that is
// non-empty only when every requested evaluator failed, the record itself
// could not be loaded, or the batch context ended before the record started.
type RecordResult struct {
	QARecordID     string
	LLMScore       *ragtypes.EvaluationScore
	ReferenceScore *ragtypes.EvaluationScore
	ErrorKind      ragtypes.ErrorKind
}

// Dispatcher is the Evaluation Dispatcher: it runs the dimensional and
// reference-metric evaluators over a batch of QARecords under bounded
// concurrency, isolating one record's failure from the rest of the batch.
type Dispatcher struct {
	store       Recorder
	dimensional *DimensionalEvaluator
	reference   *ReferenceEvaluator
	logger      *logging.Logger
}

// NewDispatcher constructs a Dispatcher. Either evaluator may be nil if the
// caller never intends to request that scoring kind.
func NewDispatcher(store Recorder, dimensional *DimensionalEvaluator, reference *ReferenceEvaluator, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{store: store, dimensional: dimensional, reference: reference, logger: logger}
}

// EvaluateBatch scores qaRecordIDs. useLLM and useReference select which
// evaluators to run; referenceAnswers, keyed by QARecord ID, is consulted for
// the reference-metric evaluator's optional context_precision/context_recall
// metrics and may be nil or partial. evalConcurrency bounds how many records
// are in flight at once (default 2, clamped to [1, 5]).
func (d *Dispatcher) EvaluateBatch(ctx context.Context, qaRecordIDs []string, useLLM, useReference bool, referenceAnswers map[string]string, evalConcurrency int) []RecordResult {
	ctx, span := tracer.Start(ctx, "evaluator.evaluate_batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("record_count", len(qaRecordIDs)),
		attribute.Bool("use_llm", useLLM),
		attribute.Bool("use_reference", useReference),
	)

	concurrency := evalConcurrency
	if concurrency < minEvalConcurrency {
		concurrency = defaultEvalConcurrency
	}
	if concurrency > maxEvalConcurrency {
		concurrency = maxEvalConcurrency
	}

	results := make([]RecordResult, len(qaRecordIDs))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, id := range qaRecordIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = RecordResult{QARecordID: id, ErrorKind: ragtypes.ErrorKindCanceled}
				return
			}
			results[i] = d.evaluateOne(ctx, id, useLLM, useReference, referenceAnswers[id])
		}(i, id)
	}

	wg.Wait()
	return results
}

func (d *Dispatcher) evaluateOne(ctx context.Context, qaRecordID string, useLLM, useReference bool, referenceAnswer string) RecordResult {
	ctx = logging.WithRequestID(ctx, qaRecordID)

	record, err := d.store.GetQARecord(ctx, qaRecordID)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn(ctx, "evaluator: qa record lookup failed", zap.Error(err))
		}
		return RecordResult{QARecordID: qaRecordID, ErrorKind: ragtypes.ErrorKindInternal}
	}
	if record.SessionID != "" {
		ctx = logging.WithSessionID(ctx, record.SessionID)
	}

	result := RecordResult{QARecordID: qaRecordID}
	contexts := chunkTexts(record.RetrievedChunks)

	if useLLM && d.dimensional != nil {
		score := d.dimensional.Evaluate(ctx, record.QueryText, record.AnswerText, contexts)
		score.ID = uuid.NewString()
		score.QARecordID = qaRecordID
		score.CreateTime = time.Now()
		if err := d.store.SaveEvaluation(ctx, &score); err != nil {
			d.recordFailure(ctx, qaRecordID, "llm_dimensional", err)
		} else {
			result.LLMScore = &score
		}
	}

	if useReference && d.reference != nil {
		var ref *string
		if referenceAnswer != "" {
			ref = &referenceAnswer
		}
		score, err := d.reference.Evaluate(ctx, record.QueryText, record.AnswerText, contexts, ref, 0)
		if err != nil {
			d.recordFailure(ctx, qaRecordID, "reference_metric", err)
		} else {
			score.ID = uuid.NewString()
			score.QARecordID = qaRecordID
			score.CreateTime = time.Now()
			if err := d.store.SaveEvaluation(ctx, &score); err != nil {
				d.recordFailure(ctx, qaRecordID, "reference_metric", err)
			} else {
				result.ReferenceScore = &score
			}
		}
	}

	if result.LLMScore == nil && result.ReferenceScore == nil && (useLLM || useReference) {
		result.ErrorKind = ragtypes.ErrorKindEvaluatorFailed
	}
	return result
}

func (d *Dispatcher) recordFailure(ctx context.Context, qaRecordID, evaluatorName string, err error) {
	if d.logger != nil {
		d.logger.Warn(ctx, "evaluator: evaluation failed", zap.String("evaluator", evaluatorName), zap.Error(err))
	}
}

func chunkTexts(chunks []ragtypes.RetrievedChunk) []string {
	if len(chunks) == 0 {
		return nil
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
