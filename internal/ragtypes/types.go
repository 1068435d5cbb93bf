// Package ragtypes holds the data model shared by every RAG technique, the
// fan-out dispatcher, the evaluators, and the persistence layer. Types here
// are plain structs; no component in this tree should redefine them locally.
package ragtypes

import "time"

// Chunk is a semantic unit of a document.
type Chunk struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Text       string
	Metadata   map[string]string
}

// EmbeddedChunk is a Chunk plus its fixed-length embedding vector.
type EmbeddedChunk struct {
	Chunk
	Vector []float32
}

// RetrievedChunk is a reference to a chunk produced by a retrieval step,
// carrying the score(s) that step assigned it. It is request-scoped and
// never persisted independently of a TechniqueResult.
type RetrievedChunk struct {
	ChunkID      string
	Text         string
	Metadata     map[string]string
	Score        float64
	VectorScore  float64 `json:",omitempty"`
	LexicalScore float64 `json:",omitempty"`
	RerankScore  float64 `json:",omitempty"`

	// Vector is the chunk's embedding, populated by retrieval steps that need
	// it for in-process similarity comparisons (e.g. Adaptive's diversity
	// bias). It is never serialized or persisted as part of a QARecord.
	Vector []float32 `json:"-"`
}

// TraceEvent is one structured step in a technique's execution.
type TraceEvent struct {
	Sequence  int
	StepName  string
	Message   string
	Details   map[string]any
	Timestamp time.Time
}

// ErrorKind enumerates the recoverable failure modes surfaced on a
// TechniqueResult or evaluation row. It never crosses the dispatcher boundary
// as a Go error value; every technique's Answer method converts errors and
// recovered panics into one of these before returning.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindUnknownTechnique  ErrorKind = "unknown_technique"
	ErrorKindRetrievalFailed   ErrorKind = "retrieval_failed"
	ErrorKindLLMFailed         ErrorKind = "llm_failed"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindCanceled          ErrorKind = "canceled"
	ErrorKindEvaluatorFailed   ErrorKind = "evaluator_failed"
	ErrorKindPersistenceFailed ErrorKind = "persistence_failed"
	ErrorKindInternal          ErrorKind = "internal_error"
)

// TechniqueResult is the outcome of one technique on one query.
type TechniqueResult struct {
	TechniqueName   string
	AnswerText      string
	RetrievedChunks []RetrievedChunk
	Trace           []TraceEvent
	RetrievalTime   time.Duration
	GenerationTime  time.Duration
	TotalTime       time.Duration
	ErrorKind       ErrorKind
}

// QARecord is a persisted TechniqueResult attached to a session.
type QARecord struct {
	ID              string
	SessionID       string
	TechniqueName   string
	QueryText       string
	AnswerText      string
	RetrievedChunks []RetrievedChunk
	Trace           []TraceEvent
	RetrievalTime   time.Duration
	GenerationTime  time.Duration
	TotalTime       time.Duration
	ErrorKind       ErrorKind
	CreateTime      time.Time
}

// ScoreType distinguishes the evaluator that produced an EvaluationScore.
type ScoreType string

const (
	ScoreTypeLLMDimensional  ScoreType = "llm_dimensional"
	ScoreTypeReferenceMetric ScoreType = "reference_metric"
	ScoreTypeHuman           ScoreType = "human"
)

// EvaluationScore is one scoring pass over a QARecord.
type EvaluationScore struct {
	ID            string
	QARecordID    string
	ScoreType     ScoreType
	Dimensions    map[string]float64
	OverallScore  *float64
	EvaluatorName string
	Metadata      map[string]any
	CreateTime    time.Time
}

// Session is a conversation thread grouping QARecords.
type Session struct {
	ID         string
	Title      string
	CreateTime time.Time
	UpdateTime time.Time
}

// RAGConfig is the per-query configuration surface described in the external
// interfaces section: a mapping with recognized keys, unknown keys ignored.
type RAGConfig struct {
	TopK                int
	MaxConcurrency      int
	PerTechniqueTimeout time.Duration

	RerankCandidates  int
	VectorWeight      float64
	LexicalWeight     float64
	TransformationType string // rewrite | stepback | decompose
	NumSubqueries     int
	MinSupportScore   int
	DiversityTheta    float64
	HydeTemperature   float64

	// LexicalRerank makes the Reranker technique score candidates with a
	// term-overlap heuristic instead of a point-wise LLM judgment per
	// candidate. Useful when the configured LLM is rate-limited or too slow
	// to score RerankCandidates passages one at a time; final answer
	// generation still goes through the LLM regardless of this flag.
	LexicalRerank bool
}

// DefaultRAGConfig returns the request-level defaults for the fan-out
// dispatcher and its techniques.
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		TopK:                5,
		MaxConcurrency:      3,
		PerTechniqueTimeout: 120 * time.Second,
		RerankCandidates:    0, // computed as max(4*top_k, 20) when zero
		VectorWeight:        0.5,
		LexicalWeight:       0.5,
		TransformationType:  "rewrite",
		NumSubqueries:       3,
		MinSupportScore:     0,
		DiversityTheta:      0.15,
		HydeTemperature:     0.7,
		LexicalRerank:       false,
	}
}
