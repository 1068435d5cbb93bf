package index

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("ragbench/index/qdrant")

// QdrantConfig configures the optional Qdrant-backed Vector Index Client.
type QdrantConfig struct {
	Host       string
	Port       int
	UseTLS     bool
	APIKey     string
	Collection string
	Dimension  int
	MaxRetries int
}

// QdrantIndex is an optional Vector Index Client backend for deployments that
// run a standalone Qdrant instance instead of the embedded chromem-go store.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	maxRetries int
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex connects to Qdrant and ensures the configured collection
// exists with the given vector dimension.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("index: dimension must be positive")
	}
	if cfg.Collection == "" {
		cfg.Collection = "ragbench_default"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("index: connecting to qdrant: %w", err)
	}

	if _, err := client.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("index: qdrant health check failed: %w", err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		maxRetries: cfg.MaxRetries,
	}

	exists, err := collectionExists(ctx, client, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("index: checking qdrant collection: %w", err)
	}
	if !exists {
		if err := idx.retry(ctx, "create_collection", func() error {
			return client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: cfg.Collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(cfg.Dimension),
					Distance: qdrant.Distance_Cosine,
				}),
			})
		}); err != nil {
			return nil, fmt.Errorf("index: creating qdrant collection: %w", err)
		}
	}

	return idx, nil
}

// collectionExists probes Qdrant for a collection's presence. go-client has
// no direct exists check; a not-found gRPC status on GetCollectionInfo is the
// documented way to distinguish "absent" from a real error.
func collectionExists(ctx context.Context, client *qdrant.Client, name string) (bool, error) {
	info, err := client.GetCollectionInfo(ctx, name)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return false, nil
		}
		return false, err
	}
	return info != nil, nil
}

func (idx *QdrantIndex) Dimension() int { return idx.dimension }

func (idx *QdrantIndex) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= idx.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 200 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := fn(); err != nil {
			lastErr = fmt.Errorf("%s: %w", op, err)
			continue
		}
		return nil
	}
	return lastErr
}

// Upsert converts embedded chunks to Qdrant points, carrying the chunk id and
// document metadata in the payload so SimilaritySearch can filter and
// reassemble RetrievedChunks without a second round trip.
func (idx *QdrantIndex) Upsert(ctx context.Context, chunks []ragtypes.EmbeddedChunk) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		if len(c.Vector) != idx.dimension {
			return fmt.Errorf("%w: chunk %s has %d dims, index wants %d", ErrDimensionMismatch, c.ChunkID, len(c.Vector), idx.dimension)
		}
		payload := map[string]*qdrant.Value{
			"chunk_id":    {Kind: &qdrant.Value_StringValue{StringValue: c.ChunkID}},
			"document_id": {Kind: &qdrant.Value_StringValue{StringValue: c.DocumentID}},
			"text":        {Kind: &qdrant.Value_StringValue{StringValue: c.Text}},
			"ordinal":     {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.Ordinal)}},
		}
		for k, v := range c.Metadata {
			payload["meta."+k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(deterministicUUID(c.ChunkID)),
			Vectors: qdrant.NewVectors(c.Vector...),
			Payload: payload,
		}
	}

	err := idx.retry(ctx, "upsert", func() error {
		_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: idx.collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("index: upserting to qdrant: %w", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// deterministicUUID maps an application chunk id onto a stable UUID so
// repeated upserts of the same chunk replace rather than duplicate the point.
func deterministicUUID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

// SimilaritySearch runs a Qdrant vector query, optionally filtered to a set
// of document ids via a payload match condition.
func (idx *QdrantIndex) SimilaritySearch(ctx context.Context, queryVector []float32, k int, filter Filter) ([]ragtypes.RetrievedChunk, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.SimilaritySearch")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if len(queryVector) != idx.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dims, index wants %d", ErrDimensionMismatch, len(queryVector), idx.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	var qFilter *qdrant.Filter
	if len(filter.DocumentIDs) > 0 {
		conditions := make([]*qdrant.Condition, len(filter.DocumentIDs))
		for i, docID := range filter.DocumentIDs {
			conditions[i] = &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "document_id",
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: docID}},
					},
				},
			}
		}
		qFilter = &qdrant.Filter{Should: conditions}
	}

	var results []*qdrant.ScoredPoint
	err := idx.retry(ctx, "search", func() error {
		res, err := idx.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: idx.collection,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
			Filter:         qFilter,
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("index: querying qdrant: %w", err)
	}

	out := make([]ragtypes.RetrievedChunk, 0, len(results))
	for _, r := range results {
		chunkID := stringPayload(r.Payload, "chunk_id")
		text := stringPayload(r.Payload, "text")
		meta := map[string]string{}
		for k, v := range r.Payload {
			if s, ok := v.Kind.(*qdrant.Value_StringValue); ok {
				meta[k] = s.StringValue
			}
		}
		out = append(out, ragtypes.RetrievedChunk{
			ChunkID:     chunkID,
			Text:        text,
			Metadata:    meta,
			Score:       float64(r.Score),
			VectorScore: float64(r.Score),
			Vector:      extractVector(r.Vectors),
		})
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// extractVector pulls the flat float32 vector out of a query result's
// vectors field, when the caller asked for WithVectors. Multi-vector or
// sparse-vector points (not used by this index) return nil.
func extractVector(v *qdrant.VectorsOutput) []float32 {
	if v == nil {
		return nil
	}
	if dense := v.GetVector(); dense != nil {
		return dense.GetData()
	}
	return nil
}

func stringPayload(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.Kind.(*qdrant.Value_StringValue); ok {
		return s.StringValue
	}
	return ""
}

// DeleteByDocument removes every point whose document_id payload matches.
func (idx *QdrantIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "document_id",
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: documentID}},
					},
				},
			},
		},
	}
	return idx.retry(ctx, "delete_by_document", func() error {
		_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: idx.collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
			},
		})
		return err
	})
}

func (idx *QdrantIndex) Close() error {
	return idx.client.Close()
}
