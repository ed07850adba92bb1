// Package redis implements the vector store contract on Redis 8+
// using hash documents and an FT HNSW index.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/modelmux/internal/db"
	dbredis "github.com/kailas-cloud/modelmux/internal/db/redis"
	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/domain/document"
	"github.com/kailas-cloud/modelmux/internal/domain/retrieval"
	"github.com/kailas-cloud/modelmux/internal/store"
)

// Hash field names. Tags are stored twice: as JSON for hydration and
// as a "k=v" tag-set for FT pre-filtering, so arbitrary tag keys work
// without schema changes.
const (
	fieldContent = "__content"
	fieldVector  = "__vector"
	fieldTags    = "__tags"
	fieldTagSet  = "__tagset"
)

// database is the consumer interface for the vector store (ISP).
type database interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	DelMulti(ctx context.Context, keys []string) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	Ping(ctx context.Context) error
}

// Store implements store.VectorStore on Redis.
type Store struct {
	db        database
	keyPrefix string
	dim       int
	hnswM     int
	hnswEF    int
}

// New creates a Redis vector store. dim is required: the FT index
// schema fixes the vector dimension at creation time.
func New(database database, keyPrefix string, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension is required for the redis store: %w", domain.ErrConfiguration)
	}
	return &Store{
		db:        database,
		keyPrefix: keyPrefix,
		dim:       dim,
		hnswM:     32,
		hnswEF:    400,
	}, nil
}

// WithHNSW configures index build parameters.
func (s *Store) WithHNSW(m, efConstruct int) *Store {
	if m > 0 {
		s.hnswM = m
	}
	if efConstruct > 0 {
		s.hnswEF = efConstruct
	}
	return s
}

// EnsureIndex creates the FT index if it does not exist yet.
func (s *Store) EnsureIndex(ctx context.Context) error {
	def := &db.IndexDefinition{
		Name:     s.indexName(),
		Prefixes: []string{s.keyPrefix + "doc:"},
		Fields: []db.IndexField{
			{Name: fieldTagSet, Type: db.IndexFieldTag, TagSeparator: ","},
			{
				Name:              fieldVector,
				Alias:             "vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         s.dim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           s.hnswM,
				VectorEFConstruct: s.hnswEF,
			},
		},
	}

	err := s.db.CreateIndex(ctx, def)
	if err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w: %w", domain.ErrVectorStore, err)
	}
	return nil
}

// Add implements store.VectorStore as a pipelined HSET upsert.
func (s *Store) Add(ctx context.Context, docs []document.Document) error {
	items := make([]db.HashSetItem, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		if len(doc.Vector()) != s.dim {
			return fmt.Errorf(
				"document %s vector dimension %d, store dimension %d: %w",
				doc.ID(), len(doc.Vector()), s.dim, domain.ErrVectorDimMismatch,
			)
		}
		fields, err := buildHashFields(doc)
		if err != nil {
			return fmt.Errorf("document %s: %w", doc.ID(), err)
		}
		items = append(items, db.HashSetItem{Key: s.docKey(doc.ID()), Fields: fields})
	}

	if err := s.db.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("add documents: %w: %w", domain.ErrVectorStore, err)
	}
	return nil
}

// Query implements store.VectorStore via FT.SEARCH KNN.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter store.Filter) ([]retrieval.Result, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf(
			"query vector dimension %d, store dimension %d: %w",
			len(vector), s.dim, domain.ErrVectorDimMismatch,
		)
	}

	res, err := s.db.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    s.indexName(),
		TagField:     fieldTagSet,
		Tags:         filter,
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{fieldContent, fieldTags, "__vector_score"},
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w: %w", domain.ErrVectorStore, err)
	}

	results := make([]retrieval.Result, 0, len(res.Entries))
	for _, entry := range res.Entries {
		doc := parseHashFields(s.extractDocID(entry.Key), entry.Fields)
		results = append(results, retrieval.New(doc, entry.Score))
	}

	retrieval.Rank(results)
	return retrieval.Truncate(results, topK), nil
}

// Delete implements store.VectorStore. Missing IDs are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(id)
	}
	if err := s.db.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("delete documents: %w: %w", domain.ErrVectorStore, err)
	}
	return nil
}

// Dim implements store.VectorStore.
func (s *Store) Dim() int { return s.dim }

// HealthCheck implements store.HealthChecker.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) docKey(id string) string {
	return s.keyPrefix + "doc:" + id
}

func (s *Store) extractDocID(key string) string {
	return strings.TrimPrefix(key, s.keyPrefix+"doc:")
}

func (s *Store) indexName() string {
	// "modelmux:" -> "modelmux:doc-idx", valid FT identifier
	return s.keyPrefix + "doc-idx"
}

// buildHashFields converts a domain Document into a flat map[string]string for HSET.
func buildHashFields(doc *document.Document) (map[string]string, error) {
	m := map[string]string{
		fieldContent: doc.Content(),
		fieldVector:  dbredis.VectorToBytes(doc.Vector()),
	}

	tags := doc.Tags()
	if len(tags) == 0 {
		return m, nil
	}

	data, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	m[fieldTags] = string(data)
	m[fieldTagSet] = buildTagSet(tags)
	return m, nil
}

// buildTagSet renders tags as a deterministic "k=v,k2=v2" string for
// the TAG index field.
func buildTagSet(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+tags[k])
	}
	return strings.Join(parts, ",")
}

// parseHashFields converts a flat hash map back into a domain Document.
func parseHashFields(id string, m map[string]string) document.Document {
	var tags map[string]string
	if raw := m[fieldTags]; raw != "" {
		// best effort: a corrupt tags field yields a document without tags
		_ = json.Unmarshal([]byte(raw), &tags)
	}
	return document.Reconstruct(id, m[fieldContent], tags, nil, nil)
}
