package rag

import (
	"context"

	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/domain/document"
	"github.com/kailas-cloud/modelmux/internal/domain/retrieval"
	"github.com/kailas-cloud/modelmux/internal/store"
)

// VectorStore is the persistence contract for the retrieval pipeline.
type VectorStore interface {
	Add(ctx context.Context, docs []document.Document) error
	Query(ctx context.Context, vector []float32, topK int, filter store.Filter) ([]retrieval.Result, error)
	Delete(ctx context.Context, ids []string) error
	Dim() int
}

// Embedder vectorizes text batches.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Generator produces the final answer from the augmented prompt.
type Generator interface {
	GenerateChat(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error)
}
