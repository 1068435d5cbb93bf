// Package tracer implements the Execution Trace Recorder: an
// append-only log of steps a technique took while answering one query.
// A Tracer is single-writer and scoped to exactly one technique invocation;
// it is never shared across concurrent fan-out branches.
package tracer

import (
	"time"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
)

// Tracer records ordered TraceEvents for a single technique invocation.
type Tracer struct {
	events []ragtypes.TraceEvent
	seq    int
	now    func() time.Time
}

// New returns a Tracer ready to record events for one invocation.
func New() *Tracer {
	return &Tracer{seq: -1, now: time.Now}
}

// Log appends one step to the trace. sequence auto-increments starting at 0;
// timestamp is monotonic within a single Tracer's lifetime because it is
// only ever advanced forward by the wall clock.
func (t *Tracer) Log(stepName, message string, details map[string]any) {
	t.seq++
	t.events = append(t.events, ragtypes.TraceEvent{
		Sequence:  t.seq,
		StepName:  stepName,
		Message:   message,
		Details:   details,
		Timestamp: t.now(),
	})
}

// Events returns the recorded trace in the order it was written. The
// returned slice must not be mutated by the caller.
func (t *Tracer) Events() []ragtypes.TraceEvent {
	return t.events
}
