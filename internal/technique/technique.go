// Package technique implements the Technique Registry and the seven
// mandatory RAG technique families: pluggable retrieval+generation
// strategies that share a vector index, language model client, and
// embedding client, but differ in control flow.
package technique

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hwk-1212/rag-eval-project/internal/index"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/hwk-1212/rag-eval-project/internal/tracer"
)

// ErrUnknownTechnique is returned by Construct for an unrecognized name.
var ErrUnknownTechnique = errors.New("technique: unknown technique")

// Completer is the subset of llmclient.Client a technique depends on.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error)
}

// Embedder is the subset of embeddings.Service a technique depends on.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Technique is the technique contract: a single public operation that
// never propagates an error upward. Implementations must recover from panics
// and convert them to ragtypes.ErrorKindInternal.
type Technique interface {
	// Answer runs the technique for one query, restricted to documentIDs
	// (empty means unrestricted), targeting a final context of size topK.
	Answer(ctx context.Context, query string, documentIDs []string, topK int, cfg ragtypes.RAGConfig) ragtypes.TechniqueResult
}

// Names of the seven mandatory technique families, exactly as accepted by
// Construct and reported by Available.
const (
	NameBaseline       = "baseline"
	NameReranker       = "reranker"
	NameFusion         = "fusion"
	NameHyDE           = "hyde"
	NameQueryTransform = "query_transformation"
	NameAdaptive       = "adaptive"
	NameSelfReflective = "self_reflective"
)

// Deps bundles the capability set every technique is constructed over.
// Construction from Deps is cheap: no I/O happens until Answer runs.
type Deps struct {
	Index    index.Index
	LLM      Completer
	Embedder Embedder
}

// Available reports the names constructible by Construct.
func Available() []string {
	return []string{
		NameBaseline,
		NameReranker,
		NameFusion,
		NameHyDE,
		NameQueryTransform,
		NameAdaptive,
		NameSelfReflective,
	}
}

// Construct builds a Technique instance by name. Unknown keys in cfg are
// ignored by every technique, so callers can pass one shared RAGConfig
// regardless of which technique it ends up driving.
func Construct(name string, deps Deps) (Technique, error) {
	switch name {
	case NameBaseline:
		return &Baseline{deps: deps}, nil
	case NameReranker:
		return &Reranker{deps: deps}, nil
	case NameFusion:
		return &Fusion{deps: deps}, nil
	case NameHyDE:
		return &HyDE{deps: deps}, nil
	case NameQueryTransform:
		return &QueryTransform{deps: deps}, nil
	case NameAdaptive:
		return &Adaptive{deps: deps}, nil
	case NameSelfReflective:
		return &SelfReflective{deps: deps}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTechnique, name)
	}
}

// run wraps a technique body with the top-level defer/recover the contract
// requires: a panic anywhere below becomes ErrorKindInternal instead of
// crossing the dispatcher boundary.
func run(name string, trc *tracer.Tracer, body func() ragtypes.TechniqueResult) (result ragtypes.TechniqueResult) {
	defer func() {
		if r := recover(); r != nil {
			trc.Log(name+"_panic", fmt.Sprintf("recovered: %v", r), nil)
			result = ragtypes.TechniqueResult{
				TechniqueName: name,
				Trace:         trc.Events(),
				ErrorKind:     ragtypes.ErrorKindInternal,
			}
		}
	}()
	return body()
}

func filterFor(documentIDs []string) index.Filter {
	return index.Filter{DocumentIDs: documentIDs}
}

func previewText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

func topScores(chunks []ragtypes.RetrievedChunk, n int) []float64 {
	if n > len(chunks) {
		n = len(chunks)
	}
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		scores[i] = math.Round(chunks[i].Score*10000) / 10000
	}
	return scores
}

func formatContext(chunks []ragtypes.RetrievedChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Text)
	}
	return b.String()
}

func contextLength(chunks []ragtypes.RetrievedChunk) int {
	total := 0
	for _, c := range chunks {
		total += len(c.Text)
	}
	return total
}

const answerSystemPrompt = "You are a helpful assistant. Answer the user's question using only the numbered context passages provided. Cite passage numbers where relevant. If the context does not contain the answer, say so."

func generationPrompt(query, contextText string) string {
	if contextText == "" {
		return fmt.Sprintf("Question: %s", query)
	}
	return fmt.Sprintf("Context:\n%s\nQuestion: %s", contextText, query)
}

func errResult(name string, trc *tracer.Tracer, kind ragtypes.ErrorKind) ragtypes.TechniqueResult {
	return ragtypes.TechniqueResult{
		TechniqueName: name,
		Trace:         trc.Events(),
		ErrorKind:     kind,
	}
}
