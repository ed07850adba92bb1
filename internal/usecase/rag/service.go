// Package rag implements the retrieval-augmented generation pipeline:
// chunk, embed and index documents, then answer questions grounded in
// the retrieved context.
package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/domain/chunk"
	"github.com/kailas-cloud/modelmux/internal/domain/document"
	"github.com/kailas-cloud/modelmux/internal/domain/ingest"
	"github.com/kailas-cloud/modelmux/internal/domain/retrieval"
	"github.com/kailas-cloud/modelmux/internal/store"
)

// DefaultSystemPrompt instructs the model to stay within the supplied
// context.
const DefaultSystemPrompt = "You are a helpful assistant. Answer the question based on the provided context."

// DefaultTopK is the retrieval depth used when none is configured.
const DefaultTopK = 5

// Answer is a grounded generation result with its supporting sources.
type Answer struct {
	Content    string
	ModelID    string
	ProviderID string
	Usage      domain.TokenUsage
	Sources    []retrieval.Result
}

// Service orchestrates the RAG pipeline.
type Service struct {
	store        VectorStore
	embedder     Embedder
	generator    Generator
	policy       chunk.Policy
	topK         int
	threshold    float64
	systemPrompt string
	maxBatch     int
	logger       *zap.Logger
}

// Config holds pipeline settings.
type Config struct {
	Policy         chunk.Policy
	TopK           int
	ScoreThreshold float64 // results below are dropped before prompting
	SystemPrompt   string
	MaxBatchSize   int // max texts per embedding call
	Logger         *zap.Logger
}

// New creates a RAG service.
func New(vs VectorStore, embedder Embedder, generator Generator, cfg Config) *Service {
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        vs,
		embedder:     embedder,
		generator:    generator,
		policy:       cfg.Policy,
		topK:         topK,
		threshold:    cfg.ScoreThreshold,
		systemPrompt: systemPrompt,
		maxBatch:     maxBatch,
		logger:       logger,
	}
}

// Ingest chunks, embeds and indexes documents. Each source document
// succeeds or fails independently; the report carries both subsets.
// Persisted IDs in the report are the IDs actually written to the
// store, so a chunked document reports its derived chunk IDs, never
// the source ID alone.
func (s *Service) Ingest(ctx context.Context, docs []document.Document) ingest.Report {
	results := make([]ingest.Result, 0, len(docs))

	for i := range docs {
		doc := &docs[i]
		persisted, err := s.ingestOne(ctx, doc)
		if err != nil {
			s.logger.Warn("document ingest failed",
				zap.String("id", doc.ID()),
				zap.Strings("persisted", persisted),
				zap.Error(err))
			results = append(results, ingest.NewError(doc.ID(), persisted, err))
			continue
		}
		results = append(results, ingest.NewOK(doc.ID(), persisted))
	}

	return ingest.NewReport(results)
}

// ingestOne returns the IDs written to the store. On a mid-document
// failure the already-persisted chunk IDs come back alongside the
// error so the report can surface the partial subset.
func (s *Service) ingestOne(ctx context.Context, doc *document.Document) ([]string, error) {
	pieces := s.policy.Split(doc.ID(), doc.Content())

	pieceDocs := make([]document.Document, 0, len(pieces))
	for _, piece := range pieces {
		pd, err := document.New(piece.ID, piece.Text, doc.Tags(), doc.Numerics())
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", piece.ID, err)
		}
		pieceDocs = append(pieceDocs, pd)
	}

	var persisted []string
	for start := 0; start < len(pieceDocs); start += s.maxBatch {
		end := start + s.maxBatch
		if end > len(pieceDocs) {
			end = len(pieceDocs)
		}
		batch := pieceDocs[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content()
		}

		embedded, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return persisted, fmt.Errorf("embed chunks: %w", err)
		}
		if len(embedded.Embeddings) != len(batch) {
			return persisted, fmt.Errorf("embedder returned %d vectors for %d chunks", len(embedded.Embeddings), len(batch))
		}

		for i := range batch {
			if dim := s.store.Dim(); dim != 0 && len(embedded.Embeddings[i]) != dim {
				return persisted, fmt.Errorf(
					"embedding dimension %d, store dimension %d: %w",
					len(embedded.Embeddings[i]), dim, domain.ErrVectorDimMismatch,
				)
			}
			batch[i].SetVector(embedded.Embeddings[i])
		}

		if err := s.store.Add(ctx, batch); err != nil {
			return persisted, fmt.Errorf("index chunks: %w", err)
		}
		for i := range batch {
			persisted = append(persisted, batch[i].ID())
		}
	}

	return persisted, nil
}

// QueryOptions are per-call overrides for the configured retrieval
// settings. A zero TopK and a nil ScoreThreshold fall back to the
// values the service was built with.
type QueryOptions struct {
	TopK           int
	ScoreThreshold *float64
}

// Retrieve returns the top-scoring chunks for a question without
// generating an answer. Results below the score threshold are dropped.
func (s *Service) Retrieve(ctx context.Context, question string, filter store.Filter, opts QueryOptions) ([]retrieval.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required: %w", domain.ErrValidation)
	}
	topK := s.topK
	if opts.TopK > 0 {
		topK = opts.TopK
	}
	threshold := s.threshold
	if opts.ScoreThreshold != nil {
		threshold = *opts.ScoreThreshold
	}

	embedded, err := s.embedder.BatchEmbed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	results, err := s.store.Query(ctx, embedded.Embeddings[0], topK, filter)
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	return applyThreshold(results, threshold), nil
}

// Query answers a question grounded in retrieved context.
func (s *Service) Query(ctx context.Context, question string, filter store.Filter, opts QueryOptions) (Answer, error) {
	sources, err := s.Retrieve(ctx, question, filter, opts)
	if err != nil {
		return Answer{}, err
	}

	req := domain.GenerationRequest{
		Messages: []domain.Message{
			domain.SystemMessage(s.systemPrompt),
			domain.UserMessage(userPrompt(question, sources)),
		},
	}

	result, err := s.generator.GenerateChat(ctx, req)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	return Answer{
		Content:    result.Content,
		ModelID:    result.ModelID,
		ProviderID: result.ProviderID,
		Usage:      result.Usage,
		Sources:    sources,
	}, nil
}

// Forget removes documents by their persisted IDs, i.e. the IDs an
// ingest report returned (chunk IDs for split documents). Unknown IDs
// are ignored by the stores.
func (s *Service) Forget(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("ids are required: %w", domain.ErrValidation)
	}
	if err := s.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

func applyThreshold(results []retrieval.Result, threshold float64) []retrieval.Result {
	if threshold <= 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score() >= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}

// userPrompt renders the context block and question. With no sources
// the model is told explicitly that nothing relevant was found, so it
// does not hallucinate grounding.
func userPrompt(question string, sources []retrieval.Result) string {
	if len(sources) == 0 {
		return fmt.Sprintf(
			"No relevant context was found in the knowledge base.\n\nQuestion: %s", question)
	}

	blocks := make([]string, len(sources))
	for i := range sources {
		blocks[i] = fmt.Sprintf("Document %d:\n%s", i+1, sources[i].Document().Content())
	}

	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(blocks, "\n\n"), question)
}
