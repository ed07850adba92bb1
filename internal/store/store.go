// Package store defines the pluggable vector store contract shared by
// the memory, redis and qdrant backends.
package store

import (
	"context"

	"github.com/kailas-cloud/modelmux/internal/domain/document"
	"github.com/kailas-cloud/modelmux/internal/domain/retrieval"
)

// Filter restricts a similarity search to documents whose tags match
// every key/value pair exactly.
type Filter map[string]string

// VectorStore is the persistence contract for embedded documents.
// Add upserts by document ID: re-adding an existing ID replaces the
// stored content and vector.
type VectorStore interface {
	Add(ctx context.Context, docs []document.Document) error
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]retrieval.Result, error)
	Delete(ctx context.Context, ids []string) error
	Dim() int
}

// HealthChecker is implemented by stores with a remote backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
