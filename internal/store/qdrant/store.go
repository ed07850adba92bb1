// Package qdrant implements the vector store contract on a Qdrant
// collection.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/domain/document"
	"github.com/kailas-cloud/modelmux/internal/domain/retrieval"
	"github.com/kailas-cloud/modelmux/internal/store"
)

// Store implements store.VectorStore on Qdrant. Qdrant point IDs must
// be UUIDs or integers, so document IDs are mapped to deterministic
// SHA1 UUIDs and the original ID travels in the payload. That keeps
// Add an upsert-by-document-ID.
type Store struct {
	client     *qdrant.Client
	collection string
	dim        int
}

// Config holds Qdrant connection settings.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
	UseTLS     bool
}

// New connects to Qdrant and returns a vector store.
func New(cfg *Config, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension is required for the qdrant store: %w", domain.ErrConfiguration)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &Store{client: client, collection: cfg.Collection, dim: dim}, nil
}

// EnsureCollection creates the collection if it does not exist yet.
func (s *Store) EnsureCollection(ctx context.Context) error {
	_, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != codes.NotFound {
		return fmt.Errorf("get collection info: %w: %w", domain.ErrVectorStore, err)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w: %w", domain.ErrVectorStore, err)
	}
	return nil
}

// Add implements store.VectorStore.
func (s *Store) Add(ctx context.Context, docs []document.Document) error {
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		if len(doc.Vector()) != s.dim {
			return fmt.Errorf(
				"document %s vector dimension %d, store dimension %d: %w",
				doc.ID(), len(doc.Vector()), s.dim, domain.ErrVectorDimMismatch,
			)
		}

		payload := map[string]any{
			"doc_id":  doc.ID(),
			"content": doc.Content(),
		}
		if len(doc.Tags()) > 0 {
			tags := make(map[string]any, len(doc.Tags()))
			for k, v := range doc.Tags() {
				tags[k] = v
			}
			payload["tags"] = tags
		}

		points = append(points, &qdrant.PointStruct{
			Id:      pointID(doc.ID()),
			Vectors: qdrant.NewVectors(doc.Vector()...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w: %w", domain.ErrVectorStore, err)
	}
	return nil
}

// Query implements store.VectorStore.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter store.Filter) ([]retrieval.Result, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf(
			"query vector dimension %d, store dimension %d: %w",
			len(vector), s.dim, domain.ErrVectorDimMismatch,
		)
	}

	var qf *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch("tags."+k, v))
		}
		qf = &qdrant.Filter{Must: must}
	}

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qf,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w: %w", domain.ErrVectorStore, err)
	}

	results := make([]retrieval.Result, 0, len(hits))
	for _, hit := range hits {
		doc := docFromPayload(hit.Payload)
		results = append(results, retrieval.New(doc, float64(hit.Score)))
	}

	retrieval.Rank(results)
	return retrieval.Truncate(results, topK), nil
}

// Delete implements store.VectorStore. Missing IDs are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete points: %w: %w", domain.ErrVectorStore, err)
	}
	return nil
}

// Dim implements store.VectorStore.
func (s *Store) Dim() int { return s.dim }

// HealthCheck implements store.HealthChecker.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Close shuts down the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// pointID derives a stable UUID from the document ID.
func pointID(docID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String())
}

func docFromPayload(payload map[string]*qdrant.Value) document.Document {
	id := payload["doc_id"].GetStringValue()
	content := payload["content"].GetStringValue()

	var tags map[string]string
	if ts := payload["tags"].GetStructValue(); ts != nil {
		tags = make(map[string]string, len(ts.Fields))
		for k, v := range ts.Fields {
			tags[k] = v.GetStringValue()
		}
	}

	return document.Reconstruct(id, content, tags, nil, nil)
}
