package domain

import "fmt"

// Generation parameter defaults and limits.
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
	MaxMessages        = 256
)

// GenerationRequest is an immutable request for text or chat generation.
// Chat calls use Messages; legacy completion calls use Prompt.
type GenerationRequest struct {
	Messages     []Message
	Prompt       string
	MaxTokens    int
	Temperature  float32
	ProviderHint string // preferred provider ID, optional
}

// Validate checks the request shape without touching any backend.
func (r *GenerationRequest) Validate() error {
	if len(r.Messages) == 0 && r.Prompt == "" {
		return fmt.Errorf("messages or prompt is required: %w", ErrValidation)
	}
	if len(r.Messages) > MaxMessages {
		return fmt.Errorf("too many messages (max %d): %w", MaxMessages, ErrValidation)
	}
	for i, m := range r.Messages {
		if !m.Role.IsValid() {
			return fmt.Errorf("message %d: invalid role %q: %w", i, m.Role, ErrValidation)
		}
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative: %w", ErrValidation)
	}
	return nil
}

// Normalized returns a copy with defaults applied.
func (r GenerationRequest) Normalized() GenerationRequest {
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature == 0 {
		r.Temperature = DefaultTemperature
	}
	return r
}

// VisionRequest is an immutable request for image-conditioned generation.
// Exactly one of ImageURL / ImageBase64 must be set.
type VisionRequest struct {
	Prompt      string
	ImageURL    string
	ImageBase64 string
	MaxTokens   int
	Temperature float32
}

// Validate checks the vision request shape.
func (r *VisionRequest) Validate() error {
	if r.Prompt == "" {
		return fmt.Errorf("prompt is required: %w", ErrValidation)
	}
	if (r.ImageURL == "") == (r.ImageBase64 == "") {
		return fmt.Errorf("exactly one of image_url or image_base64 is required: %w", ErrValidation)
	}
	return nil
}

// TokenUsage holds token counts for a single backend call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add accumulates another usage into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// GenerationResult is the normalized response shape shared by all providers.
type GenerationResult struct {
	Content      string
	ModelID      string
	ProviderID   string
	Usage        TokenUsage
	FinishReason string
}
