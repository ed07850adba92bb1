// Package provider builds the configured backend adapters.
package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/modelmux/internal/config"
	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/provider/azure"
	"github.com/kailas-cloud/modelmux/internal/provider/bedrock"
	"github.com/kailas-cloud/modelmux/internal/provider/google"
	"github.com/kailas-cloud/modelmux/internal/provider/openai"
)

// Build creates provider adapters in config order. Config order is the
// failover order used by the router.
func Build(ctx context.Context, cfgs []config.ProviderConfig, logger *zap.Logger) ([]domain.Provider, error) {
	providers := make([]domain.Provider, 0, len(cfgs))
	for _, cfg := range cfgs {
		p, err := build(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("build provider %s: %w", cfg.ID, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func build(ctx context.Context, cfg config.ProviderConfig, logger *zap.Logger) (domain.Provider, error) {
	switch cfg.Kind {
	case "openai":
		return openai.New(&openai.Config{
			ID:             cfg.ID,
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			VisionModel:    cfg.VisionModel,
			Dimensions:     cfg.Dimensions,
			Logger:         logger,
		}), nil
	case "azure":
		return azure.New(&azure.Config{
			Config: openai.Config{
				ID:             cfg.ID,
				APIKey:         cfg.APIKey,
				Model:          cfg.Model,
				EmbeddingModel: cfg.EmbeddingModel,
				VisionModel:    cfg.VisionModel,
				Dimensions:     cfg.Dimensions,
				Logger:         logger,
			},
			Endpoint:   cfg.Endpoint,
			APIVersion: cfg.APIVersion,
		}), nil
	case "google":
		return google.New(ctx, &google.Config{
			ID:             cfg.ID,
			APIKey:         cfg.APIKey,
			Project:        cfg.Project,
			Location:       cfg.Location,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			VisionModel:    cfg.VisionModel,
			Logger:         logger,
		})
	case "bedrock":
		return bedrock.New(ctx, &bedrock.Config{
			ID:             cfg.ID,
			Region:         cfg.Region,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			VisionModel:    cfg.VisionModel,
			Logger:         logger,
		})
	default:
		return nil, fmt.Errorf("unknown provider kind %q: %w", cfg.Kind, domain.ErrConfiguration)
	}
}
