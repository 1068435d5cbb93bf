// Package dispatch implements the Fan-out Dispatcher: it runs a set of
// named techniques against one query under a bounded concurrency pool,
// preserves the caller's requested technique order in the result list
// regardless of finish order, and persists the batch as one transaction.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hwk-1212/rag-eval-project/internal/logging"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/hwk-1212/rag-eval-project/internal/store"
	"github.com/hwk-1212/rag-eval-project/internal/technique"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/hwk-1212/rag-eval-project/internal/dispatch")

const (
	defaultMaxConcurrency = 3
	minMaxConcurrency     = 1
	maxMaxConcurrency     = 10
	defaultPerTechTimeout = 120 * time.Second
)

// Persister is the subset of store.Store the dispatcher writes results
// through. Narrowed to one method so tests can supply a fake.
type Persister interface {
	SaveQARecords(ctx context.Context, records []ragtypes.QARecord) error
}

var _ Persister = (*store.Store)(nil)

// Dispatcher fans a query out across named techniques.
type Dispatcher struct {
	deps      technique.Deps
	persister Persister
	logger    *logging.Logger
}

// New constructs a Dispatcher over a technique dependency set and a
// persistence backend. logger may be nil; failures are simply not logged.
func New(deps technique.Deps, persister Persister, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{deps: deps, persister: persister, logger: logger}
}

// Result is one fan-out's outcome: results in requested-technique order,
// plus whether persistence of the batch succeeded.
type Result struct {
	Results           []ragtypes.TechniqueResult
	PersistenceFailed bool
}

// Run executes techniqueNames against query, restricted to documentIDs, and
// returns results in the same order as techniqueNames. Unknown technique
// names produce a TechniqueResult with ErrorKindUnknownTechnique rather than
// failing the whole batch.
func (d *Dispatcher) Run(ctx context.Context, sessionID, query string, documentIDs, techniqueNames []string, cfg ragtypes.RAGConfig) Result {
	ctx, span := tracer.Start(ctx, "dispatch.run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("technique_count", len(techniqueNames)),
		attribute.String("session_id", sessionID),
	)
	if sessionID != "" {
		ctx = logging.WithSessionID(ctx, sessionID)
	}

	concurrency := cfg.MaxConcurrency
	if concurrency < minMaxConcurrency {
		concurrency = defaultMaxConcurrency
	}
	if concurrency > maxMaxConcurrency {
		concurrency = maxMaxConcurrency
	}

	perTechTimeout := cfg.PerTechniqueTimeout
	if perTechTimeout <= 0 {
		perTechTimeout = defaultPerTechTimeout
	}

	results := make([]ragtypes.TechniqueResult, len(techniqueNames))

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, name := range techniqueNames {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = ragtypes.TechniqueResult{TechniqueName: name, ErrorKind: ragtypes.ErrorKindCanceled}
				return
			}

			results[i] = d.runOne(ctx, name, query, documentIDs, cfg, perTechTimeout)
		}(i, name)
	}

	wg.Wait()

	span.SetAttributes(attribute.Int("failure_count", countFailures(results)))

	res := Result{Results: results}
	if d.persister != nil {
		records := toQARecords(sessionID, query, results)
		if err := d.persister.SaveQARecords(ctx, records); err != nil {
			res.PersistenceFailed = true
			span.RecordError(err)
			span.SetStatus(codes.Error, "persistence failed")
			if d.logger != nil {
				d.logger.Error(ctx, "dispatch: persist qa records failed", zap.Error(err))
			}
		}
	}
	return res
}

func (d *Dispatcher) runOne(ctx context.Context, name, query string, documentIDs []string, cfg ragtypes.RAGConfig, timeout time.Duration) ragtypes.TechniqueResult {
	tech, err := technique.Construct(name, d.deps)
	if err != nil {
		return ragtypes.TechniqueResult{TechniqueName: name, ErrorKind: ragtypes.ErrorKindUnknownTechnique}
	}

	techCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	techCtx = logging.WithTechnique(techCtx, name)

	techCtx, span := tracer.Start(techCtx, "dispatch.technique",
		oteltrace.WithAttributes(attribute.String("technique_name", name)))
	defer span.End()

	start := time.Now()
	result := tech.Answer(techCtx, query, documentIDs, cfg.TopK, cfg)
	span.SetAttributes(
		attribute.String("error_kind", string(result.ErrorKind)),
		attribute.Float64("duration_s", time.Since(start).Seconds()),
	)
	if result.ErrorKind != ragtypes.ErrorKindNone {
		span.SetStatus(codes.Error, string(result.ErrorKind))
		if d.logger != nil {
			d.logger.Warn(techCtx, "dispatch: technique failed", zap.String("error_kind", string(result.ErrorKind)))
		}
	}
	return result
}

func countFailures(results []ragtypes.TechniqueResult) int {
	n := 0
	for _, r := range results {
		if r.ErrorKind != ragtypes.ErrorKindNone {
			n++
		}
	}
	return n
}

func toQARecords(sessionID, query string, results []ragtypes.TechniqueResult) []ragtypes.QARecord {
	records := make([]ragtypes.QARecord, 0, len(results))
	now := time.Now()
	for _, r := range results {
		records = append(records, ragtypes.QARecord{
			ID:              uuid.NewString(),
			SessionID:       sessionID,
			TechniqueName:   r.TechniqueName,
			QueryText:       query,
			AnswerText:      r.AnswerText,
			RetrievedChunks: r.RetrievedChunks,
			Trace:           r.Trace,
			RetrievalTime:   r.RetrievalTime,
			GenerationTime:  r.GenerationTime,
			TotalTime:       r.TotalTime,
			ErrorKind:       r.ErrorKind,
			CreateTime:      now,
		})
	}
	return records
}
