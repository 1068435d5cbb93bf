package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var chromemTracer = otel.Tracer("ragbench/index/chromem")

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	Path       string
	Collection string
	Dimension  int
	Compress   bool
}

// ChromemIndex is the default embedded Vector Index Client implementation.
// It embeds no text itself: callers already hand it embedding vectors, since
// chromem-go's own EmbeddingFunc is only wired for its own internal use
// (collection creation requires one even when never invoked).
type ChromemIndex struct {
	db         *chromem.DB
	collection string
	dimension  int

	mu     sync.Mutex
	coll   *chromem.Collection
}

var _ Index = (*ChromemIndex)(nil)

// NewChromemIndex opens (or creates) a persistent chromem-go database at
// cfg.Path and prepares the configured collection.
func NewChromemIndex(cfg ChromemConfig) (*ChromemIndex, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("index: dimension must be positive")
	}
	if cfg.Collection == "" {
		cfg.Collection = "ragbench_default"
	}

	expanded, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("index: resolving chromem path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0700); err != nil {
		return nil, fmt.Errorf("index: creating chromem directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(expanded, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("index: opening chromem db: %w", err)
	}

	// chromem-go collections require an EmbeddingFunc even though we never
	// call the text-based Query path; it is invoked only if a caller (never
	// this package) later adds documents by raw text.
	noopEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("index: text embedding not supported, embed before upsert")
	}

	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, noopEmbed)
	if err != nil {
		return nil, fmt.Errorf("index: creating collection %s: %w", cfg.Collection, err)
	}

	return &ChromemIndex{
		db:         db,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		coll:       coll,
	}, nil
}

func expandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func (idx *ChromemIndex) Dimension() int { return idx.dimension }

// Upsert stores embedded chunks in the collection. chromem-go has no update
// semantics distinct from add-by-id, so re-adding a chunk_id replaces it.
func (idx *ChromemIndex) Upsert(ctx context.Context, chunks []ragtypes.EmbeddedChunk) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if len(c.Vector) != idx.dimension {
			span.RecordError(ErrDimensionMismatch)
			return fmt.Errorf("%w: chunk %s has %d dims, index wants %d", ErrDimensionMismatch, c.ChunkID, len(c.Vector), idx.dimension)
		}
		docs[i] = chromem.Document{
			ID:        c.ChunkID,
			Content:   c.Text,
			Metadata:  toStringMetadata(c.DocumentID, c.Ordinal, c.Metadata),
			Embedding: c.Vector,
		}
	}

	idx.mu.Lock()
	err := idx.coll.AddDocuments(ctx, docs, 4)
	idx.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("index: upserting to chromem: %w", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// SimilaritySearch queries chromem-go by raw vector, most similar first.
func (idx *ChromemIndex) SimilaritySearch(ctx context.Context, queryVector []float32, k int, filter Filter) ([]ragtypes.RetrievedChunk, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.SimilaritySearch")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if len(queryVector) != idx.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dims, index wants %d", ErrDimensionMismatch, len(queryVector), idx.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	var where map[string]string
	if len(filter.DocumentIDs) == 1 {
		where = map[string]string{"document_id": filter.DocumentIDs[0]}
	}

	idx.mu.Lock()
	n := idx.coll.Count()
	idx.mu.Unlock()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	results, err := idx.coll.QueryEmbedding(ctx, queryVector, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("index: querying chromem: %w", err)
	}

	docIDSet := map[string]struct{}{}
	for _, d := range filter.DocumentIDs {
		docIDSet[d] = struct{}{}
	}

	out := make([]ragtypes.RetrievedChunk, 0, len(results))
	for _, r := range results {
		if len(docIDSet) > 0 {
			if docID, ok := r.Metadata["document_id"]; !ok || !inSet(docIDSet, docID) {
				continue
			}
		}
		out = append(out, ragtypes.RetrievedChunk{
			ChunkID:     r.ID,
			Text:        r.Content,
			Metadata:    r.Metadata,
			Score:       float64(r.Similarity),
			VectorScore: float64(r.Similarity),
			Vector:      r.Embedding,
		})
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

func inSet(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// DeleteByDocument removes every chunk with matching document_id metadata.
func (idx *ChromemIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.coll.Delete(ctx, map[string]string{"document_id": documentID}, nil)
}

func (idx *ChromemIndex) Close() error {
	// chromem-go persists synchronously on write; nothing to flush here.
	return nil
}

func toStringMetadata(documentID string, ordinal int, meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}
	out["document_id"] = documentID
	out["ordinal"] = strconv.Itoa(ordinal)
	return out
}
