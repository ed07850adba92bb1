// Package openai adapts any OpenAI-compatible API (OpenAI, Nebius,
// vLLM gateways) to the domain Provider capability interface.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/metrics"
)

// Client is a provider backed by an OpenAI-compatible API.
type Client struct {
	id             string
	api            *openai.Client
	model          string
	embeddingModel openai.EmbeddingModel
	visionModel    string
	dimensions     int
	user           string
	logger         *zap.Logger
}

// Config holds the adapter settings.
type Config struct {
	ID             string // provider identifier used in routing, ledger, metrics
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	VisionModel    string // defaults to Model
	Dimensions     int
	User           string
	Logger         *zap.Logger
}

// New creates an OpenAI-compatible provider adapter.
func New(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return NewWithClientConfig(cfg, clientCfg)
}

// NewWithClientConfig creates an adapter with a prebuilt client config.
// The azure package uses this to reuse the whole normalization layer.
func NewWithClientConfig(cfg *Config, clientCfg openai.ClientConfig) *Client {
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.Model
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		id:             cfg.ID,
		api:            openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		visionModel:    visionModel,
		dimensions:     cfg.Dimensions,
		user:           cfg.User,
		logger:         logger,
	}
}

// ID implements domain.Provider.
func (c *Client) ID() string { return c.id }

// GenerateChat implements domain.Provider.
func (c *Client) GenerateChat(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	req = req.Normalized()

	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		User:        c.user,
	})
	c.observe("chat", c.model, start, err)
	if err != nil {
		return domain.GenerationResult{}, c.mapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.GenerationResult{}, domain.NewProviderError(
			c.id, domain.FaultUnavailable, 0, errors.New("empty chat response"))
	}

	return domain.GenerationResult{
		Content:      resp.Choices[0].Message.Content,
		ModelID:      resp.Model,
		ProviderID:   c.id,
		Usage:        usageFrom(resp.Usage),
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}

// GenerateText implements domain.Provider via the legacy completions endpoint.
func (c *Client) GenerateText(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	req = req.Normalized()

	start := time.Now()
	resp, err := c.api.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       c.model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		User:        c.user,
	})
	c.observe("text", c.model, start, err)
	if err != nil {
		return domain.GenerationResult{}, c.mapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.GenerationResult{}, domain.NewProviderError(
			c.id, domain.FaultUnavailable, 0, errors.New("empty completion response"))
	}

	var usage openai.Usage
	if resp.Usage != nil {
		usage = *resp.Usage
	}
	return domain.GenerationResult{
		Content:      resp.Choices[0].Text,
		ModelID:      resp.Model,
		ProviderID:   c.id,
		Usage:        usageFrom(usage),
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}

// GenerateEmbedding implements domain.Provider.
func (c *Client) GenerateEmbedding(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if c.embeddingModel == "" {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"provider %s has no embedding model configured: %w", c.id, domain.ErrCapabilityNotSupported)
	}

	embReq := openai.EmbeddingRequest{
		Input:          texts,
		Model:          c.embeddingModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           c.user,
	}
	if c.dimensions > 0 {
		embReq.Dimensions = c.dimensions
	}

	start := time.Now()
	resp, err := c.api.CreateEmbeddings(ctx, embReq)
	c.observe("embedding", string(c.embeddingModel), start, err)
	if err != nil {
		return domain.BatchEmbeddingResult{}, c.mapAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		return domain.BatchEmbeddingResult{}, domain.NewProviderError(
			c.id, domain.FaultUnavailable, 0,
			fmt.Errorf("embedding response size %d, want %d", len(resp.Data), len(texts)))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
		Provider:     c.id,
		Model:        string(c.embeddingModel),
	}, nil
}

// GenerateVision implements domain.Provider using chat multi-content parts.
func (c *Client) GenerateVision(ctx context.Context, req domain.VisionRequest) (domain.GenerationResult, error) {
	imageURL := req.ImageURL
	if imageURL == "" {
		imageURL = "data:image/jpeg;base64," + req.ImageBase64
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = domain.DefaultMaxTokens
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.visionModel,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: imageURL, Detail: openai.ImageURLDetailAuto},
				},
			},
		}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		User:        c.user,
	})
	c.observe("vision", c.visionModel, start, err)
	if err != nil {
		return domain.GenerationResult{}, c.mapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.GenerationResult{}, domain.NewProviderError(
			c.id, domain.FaultUnavailable, 0, errors.New("empty vision response"))
	}

	return domain.GenerationResult{
		Content:      resp.Choices[0].Message.Content,
		ModelID:      resp.Model,
		ProviderID:   c.id,
		Usage:        usageFrom(resp.Usage),
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (c *Client) observe(op, model string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ProviderRequestsTotal.WithLabelValues(c.id, model, op, status).Inc()
	if err == nil {
		metrics.ProviderRequestDuration.WithLabelValues(c.id, model, op).Observe(time.Since(start).Seconds())
	}
}

func usageFrom(u openai.Usage) domain.TokenUsage {
	return domain.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// mapAPIError classifies go-openai errors into the shared fault taxonomy.
func (c *Client) mapAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewProviderError(c.id, domain.FaultTimeout, 0, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewProviderError(
			c.id, faultForStatus(apiErr.HTTPStatusCode), apiErr.HTTPStatusCode,
			fmt.Errorf("api error: %s", apiErr.Message))
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return domain.NewProviderError(
			c.id, faultForStatus(reqErr.HTTPStatusCode), reqErr.HTTPStatusCode,
			fmt.Errorf("request error: %s", detail))
	}

	return domain.NewProviderError(c.id, domain.FaultUnavailable, 0, err)
}

func faultForStatus(status int) domain.Fault {
	switch {
	case status == 401 || status == 403:
		return domain.FaultAuthFailed
	case status == 429:
		return domain.FaultRateLimited
	case status == 408 || status == 504:
		return domain.FaultTimeout
	case status >= 400 && status < 500:
		return domain.FaultInvalidRequest
	default:
		return domain.FaultUnavailable
	}
}

// extractDetail extracts the "detail" field from a JSON error body
// (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
