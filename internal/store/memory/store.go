// Package memory is an in-process vector store. Used for tests and
// single-node deployments without external infrastructure.
package memory

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/domain/document"
	"github.com/kailas-cloud/modelmux/internal/domain/retrieval"
	"github.com/kailas-cloud/modelmux/internal/store"
)

// Store keeps embedded documents in a map guarded by a RWMutex.
// Add is an upsert: the last write for an ID wins.
type Store struct {
	mu   sync.RWMutex
	docs map[string]document.Document
	dim  int // 0 until the first document fixes it
}

// New creates an empty in-memory store. dim 0 adopts the dimension of
// the first added document.
func New(dim int) *Store {
	return &Store{
		docs: make(map[string]document.Document),
		dim:  dim,
	}
}

// Add implements store.VectorStore.
func (s *Store) Add(_ context.Context, docs []document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if len(doc.Vector()) == 0 {
			return fmt.Errorf("document %s has no vector: %w", doc.ID(), domain.ErrValidation)
		}
		if s.dim == 0 {
			s.dim = len(doc.Vector())
		}
		if len(doc.Vector()) != s.dim {
			return fmt.Errorf(
				"document %s vector dimension %d, store dimension %d: %w",
				doc.ID(), len(doc.Vector()), s.dim, domain.ErrVectorDimMismatch,
			)
		}
	}
	for _, doc := range docs {
		s.docs[doc.ID()] = doc
	}
	return nil
}

// Query implements store.VectorStore using exact cosine similarity.
func (s *Store) Query(_ context.Context, vector []float32, topK int, filter store.Filter) ([]retrieval.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim != 0 && len(vector) != s.dim {
		return nil, fmt.Errorf(
			"query vector dimension %d, store dimension %d: %w",
			len(vector), s.dim, domain.ErrVectorDimMismatch,
		)
	}

	results := make([]retrieval.Result, 0, len(s.docs))
	for _, doc := range s.docs {
		if !doc.MatchesTags(filter) {
			continue
		}
		results = append(results, retrieval.New(doc, cosine(vector, doc.Vector())))
	}

	retrieval.Rank(results)
	return retrieval.Truncate(results, topK), nil
}

// Delete implements store.VectorStore. Missing IDs are ignored.
func (s *Store) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

// Dim implements store.VectorStore.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// cosine returns the cosine similarity of two equal-length vectors.
// A zero-norm vector scores 0 against everything.
func cosine(a, b []float32) float64 {
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
