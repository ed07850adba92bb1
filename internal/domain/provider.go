package domain

import "context"

// Provider is the common capability interface over heterogeneous model
// backends. Any subset of capabilities may be unsupported; unsupported
// calls return ErrCapabilityNotSupported.
type Provider interface {
	// ID returns the configured provider identifier (e.g. "openai-main").
	ID() string

	// GenerateChat produces a chat completion from an ordered message list.
	GenerateChat(ctx context.Context, req GenerationRequest) (GenerationResult, error)

	// GenerateText produces a plain text completion from a prompt.
	GenerateText(ctx context.Context, req GenerationRequest) (GenerationResult, error)

	// GenerateEmbedding vectorizes a batch of texts.
	GenerateEmbedding(ctx context.Context, texts []string) (BatchEmbeddingResult, error)

	// GenerateVision produces a completion conditioned on an image.
	GenerateVision(ctx context.Context, req VisionRequest) (GenerationResult, error)
}

// HealthChecker verifies backend availability. Providers implement it
// where the backend offers a cheap probe endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
