// Package router dispatches generation requests across backend
// providers with ordered failover and usage accounting.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/domain/pricing"
	"github.com/kailas-cloud/modelmux/internal/domain/usage"
	"github.com/kailas-cloud/modelmux/internal/metrics"
)

// DefaultRetryBackoff is the pause before the single same-provider
// retry after a timeout.
const DefaultRetryBackoff = 500 * time.Millisecond

// Service routes requests to providers in configured order. A provider
// hint promotes one provider to the front without changing the rest of
// the chain.
type Service struct {
	providers []domain.Provider
	pricing   *pricing.Table
	ledger    UsageLedger
	backoff   time.Duration
	logger    *zap.Logger
}

// New creates a router over providers in failover order.
func New(providers []domain.Provider, table *pricing.Table, ledger UsageLedger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		providers: providers,
		pricing:   table,
		ledger:    ledger,
		backoff:   DefaultRetryBackoff,
		logger:    logger,
	}
}

// WithBackoff configures the timeout retry pause.
func (s *Service) WithBackoff(d time.Duration) *Service {
	if d > 0 {
		s.backoff = d
	}
	return s
}

// ProviderIDs returns provider identifiers in failover order.
func (s *Service) ProviderIDs() []string {
	ids := make([]string, len(s.providers))
	for i, p := range s.providers {
		ids[i] = p.ID()
	}
	return ids
}

// Providers returns the configured providers in failover order.
func (s *Service) Providers() []domain.Provider {
	out := make([]domain.Provider, len(s.providers))
	copy(out, s.providers)
	return out
}

// GenerateChat runs a chat completion with failover.
func (s *Service) GenerateChat(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return domain.GenerationResult{}, err
	}

	var result domain.GenerationResult
	err := s.dispatch(ctx, usage.OpChat, req.ProviderHint,
		func(ctx context.Context, p domain.Provider) (string, domain.TokenUsage, error) {
			res, err := p.GenerateChat(ctx, req)
			if err != nil {
				return "", domain.TokenUsage{}, err
			}
			result = res
			return res.ModelID, res.Usage, nil
		})
	if err != nil {
		return domain.GenerationResult{}, err
	}
	return result, nil
}

// GenerateText runs a plain text completion with failover.
func (s *Service) GenerateText(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	if req.Prompt == "" {
		return domain.GenerationResult{}, fmt.Errorf("prompt is required: %w", domain.ErrValidation)
	}

	var result domain.GenerationResult
	err := s.dispatch(ctx, usage.OpText, req.ProviderHint,
		func(ctx context.Context, p domain.Provider) (string, domain.TokenUsage, error) {
			res, err := p.GenerateText(ctx, req)
			if err != nil {
				return "", domain.TokenUsage{}, err
			}
			result = res
			return res.ModelID, res.Usage, nil
		})
	if err != nil {
		return domain.GenerationResult{}, err
	}
	return result, nil
}

// GenerateEmbedding vectorizes texts with failover. Providers without
// an embedding model are skipped.
func (s *Service) GenerateEmbedding(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("texts are required: %w", domain.ErrValidation)
	}

	var result domain.BatchEmbeddingResult
	err := s.dispatch(ctx, usage.OpEmbedding, "",
		func(ctx context.Context, p domain.Provider) (string, domain.TokenUsage, error) {
			res, err := p.GenerateEmbedding(ctx, texts)
			if err != nil {
				return "", domain.TokenUsage{}, err
			}
			result = res
			u := domain.TokenUsage{PromptTokens: res.PromptTokens, TotalTokens: res.TotalTokens}
			return res.Model, u, nil
		})
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return result, nil
}

// GenerateVision runs an image understanding request with failover.
func (s *Service) GenerateVision(ctx context.Context, req domain.VisionRequest) (domain.GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return domain.GenerationResult{}, err
	}

	var result domain.GenerationResult
	err := s.dispatch(ctx, usage.OpVision, "",
		func(ctx context.Context, p domain.Provider) (string, domain.TokenUsage, error) {
			res, err := p.GenerateVision(ctx, req)
			if err != nil {
				return "", domain.TokenUsage{}, err
			}
			result = res
			return res.ModelID, res.Usage, nil
		})
	if err != nil {
		return domain.GenerationResult{}, err
	}
	return result, nil
}

// Embed implements domain.Embedder for the retrieval pipeline.
func (s *Service) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	batch, err := s.GenerateEmbedding(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    batch.Embeddings[0],
		PromptTokens: batch.PromptTokens,
		TotalTokens:  batch.TotalTokens,
		Provider:     batch.Provider,
		Model:        batch.Model,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (s *Service) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return s.GenerateEmbedding(ctx, texts)
}

// dispatch walks the failover chain. RateLimited and Unavailable
// advance to the next provider, a Timeout earns one same-provider
// retry, AuthFailed and InvalidRequest abort immediately since another
// backend cannot fix credentials or a malformed request.
func (s *Service) dispatch(ctx context.Context, op usage.Operation, hint string,
	call func(context.Context, domain.Provider) (string, domain.TokenUsage, error),
) error {
	failures := make(map[string]error)

	for _, p := range s.ordered(hint) {
		model, u, err := s.attempt(ctx, p, call)
		if err == nil {
			s.record(ctx, p.ID(), model, op, u)
			return nil
		}

		// A dead context would fail every remaining provider too;
		// surface the cancellation instead of AllProvidersFailed.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, domain.ErrCapabilityNotSupported) {
			failures[p.ID()] = err
			continue
		}

		fault, known := domain.FaultOf(err)
		if known && !fault.Retriable() {
			return err
		}

		label := "unknown"
		if known {
			label = string(fault)
		}
		metrics.ProviderFailoversTotal.WithLabelValues(p.ID(), label).Inc()
		s.logger.Warn("provider failed, advancing",
			zap.String("provider", p.ID()),
			zap.String("fault", label),
			zap.Error(err))
		failures[p.ID()] = err
	}

	return domain.NewAllProvidersFailed(failures)
}

// attempt calls the provider once, plus a single backoff retry on
// timeout.
func (s *Service) attempt(ctx context.Context, p domain.Provider,
	call func(context.Context, domain.Provider) (string, domain.TokenUsage, error),
) (string, domain.TokenUsage, error) {
	model, u, err := call(ctx, p)
	if err == nil {
		return model, u, nil
	}

	if fault, ok := domain.FaultOf(err); !ok || fault != domain.FaultTimeout {
		return "", domain.TokenUsage{}, err
	}

	select {
	case <-ctx.Done():
		return "", domain.TokenUsage{}, ctx.Err()
	case <-time.After(s.backoff):
	}
	return call(ctx, p)
}

// ordered returns providers in failover order, with the hinted
// provider promoted to the front. An unknown hint is ignored.
func (s *Service) ordered(hint string) []domain.Provider {
	if hint == "" {
		return s.providers
	}
	for i, p := range s.providers {
		if p.ID() != hint {
			continue
		}
		out := make([]domain.Provider, 0, len(s.providers))
		out = append(out, p)
		out = append(out, s.providers[:i]...)
		out = append(out, s.providers[i+1:]...)
		return out
	}
	return s.providers
}

// record prices the finished request and appends it to the ledger.
// Accounting never fails the request itself.
func (s *Service) record(ctx context.Context, providerID, model string, op usage.Operation, u domain.TokenUsage) {
	cost, known := s.pricing.Cost(providerID, model, u.PromptTokens, u.CompletionTokens)
	if !known {
		s.logger.Warn("no pricing for model, recording zero cost",
			zap.String("provider", providerID),
			zap.String("model", model))
	}

	metrics.ProviderTokensTotal.WithLabelValues(providerID, model, "prompt").Add(float64(u.PromptTokens))
	metrics.ProviderTokensTotal.WithLabelValues(providerID, model, "completion").Add(float64(u.CompletionTokens))
	metrics.ProviderCostUSDTotal.WithLabelValues(providerID, model).Add(cost)

	rec := usage.Record{
		Timestamp:        time.Now().UTC(),
		Provider:         providerID,
		Model:            model,
		Op:               op,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		CostUSD:          cost,
		Priced:           known,
	}
	if err := s.ledger.Append(ctx, rec); err != nil {
		s.logger.Warn("ledger append failed", zap.Error(err))
	}
}
