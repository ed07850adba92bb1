// Package google adapts Gemini models (Gemini API or Vertex AI
// backend) to the domain Provider capability interface.
package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/metrics"
)

// Client is a provider backed by the Google GenAI SDK.
type Client struct {
	id             string
	api            *genai.Client
	model          string
	embeddingModel string
	visionModel    string
	logger         *zap.Logger
}

// Config holds the adapter settings. When Project is set the Vertex AI
// backend is used, otherwise the Gemini API with APIKey.
type Config struct {
	ID             string
	APIKey         string
	Project        string
	Location       string
	Model          string
	EmbeddingModel string
	VisionModel    string // defaults to Model
	Logger         *zap.Logger
}

// New creates a Gemini provider adapter.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	clientCfg := &genai.ClientConfig{}
	if cfg.Project != "" {
		clientCfg.Project = cfg.Project
		clientCfg.Location = cfg.Location
		clientCfg.Backend = genai.BackendVertexAI
	} else {
		clientCfg.APIKey = cfg.APIKey
		clientCfg.Backend = genai.BackendGeminiAPI
	}

	api, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

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
		api:            api,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		visionModel:    visionModel,
		logger:         logger,
	}, nil
}

// ID implements domain.Provider.
func (c *Client) ID() string { return c.id }

// GenerateChat implements domain.Provider. System messages become the
// system instruction; assistant turns map to the "model" role.
func (c *Client) GenerateChat(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	req = req.Normalized()

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		Temperature:     genai.Ptr(req.Temperature),
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	return c.generate(ctx, "chat", c.model, contents, cfg)
}

// GenerateText implements domain.Provider.
func (c *Client) GenerateText(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	req = req.Normalized()

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		Temperature:     genai.Ptr(req.Temperature),
	}
	return c.generate(ctx, "text", c.model, genai.Text(req.Prompt), cfg)
}

// GenerateEmbedding implements domain.Provider.
func (c *Client) GenerateEmbedding(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if c.embeddingModel == "" {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"provider %s has no embedding model configured: %w", c.id, domain.ErrCapabilityNotSupported)
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	start := time.Now()
	resp, err := c.api.Models.EmbedContent(ctx, c.embeddingModel, contents, nil)
	c.observe("embedding", c.embeddingModel, start, err)
	if err != nil {
		return domain.BatchEmbeddingResult{}, c.mapError(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return domain.BatchEmbeddingResult{}, domain.NewProviderError(
			c.id, domain.FaultUnavailable, 0,
			fmt.Errorf("embedding response size %d, want %d", len(resp.Embeddings), len(texts)))
	}

	embeddings := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		embeddings[i] = e.Values
	}

	return domain.BatchEmbeddingResult{
		Embeddings: embeddings,
		Provider:   c.id,
		Model:      c.embeddingModel,
	}, nil
}

// GenerateVision implements domain.Provider. URL images are passed by
// reference, inline images as raw bytes.
func (c *Client) GenerateVision(ctx context.Context, req domain.VisionRequest) (domain.GenerationResult, error) {
	var imagePart *genai.Part
	if req.ImageURL != "" {
		imagePart = genai.NewPartFromURI(req.ImageURL, "image/jpeg")
	} else {
		data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			return domain.GenerationResult{}, domain.NewProviderError(
				c.id, domain.FaultInvalidRequest, 0, fmt.Errorf("decode image: %w", err))
		}
		imagePart = genai.NewPartFromBytes(data, "image/jpeg")
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = domain.DefaultMaxTokens
	}
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Temperature:     genai.Ptr(req.Temperature),
	}

	contents := []*genai.Content{genai.NewContentFromParts(
		[]*genai.Part{genai.NewPartFromText(req.Prompt), imagePart}, genai.RoleUser)}

	return c.generate(ctx, "vision", c.visionModel, contents, cfg)
}

// HealthCheck verifies API reachability with a minimal token count call.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.api.Models.CountTokens(ctx, c.model, genai.Text("ping"), nil); err != nil {
		return fmt.Errorf("count tokens: %w", err)
	}
	return nil
}

func (c *Client) generate(ctx context.Context, op, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (domain.GenerationResult, error) {
	start := time.Now()
	resp, err := c.api.Models.GenerateContent(ctx, model, contents, cfg)
	c.observe(op, model, start, err)
	if err != nil {
		return domain.GenerationResult{}, c.mapError(err)
	}
	if len(resp.Candidates) == 0 {
		return domain.GenerationResult{}, domain.NewProviderError(
			c.id, domain.FaultUnavailable, 0, errors.New("no candidates in response"))
	}

	result := domain.GenerationResult{
		Content:      resp.Text(),
		ModelID:      model,
		ProviderID:   c.id,
		FinishReason: string(resp.Candidates[0].FinishReason),
	}
	if resp.UsageMetadata != nil {
		result.Usage = domain.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
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

// mapError classifies genai SDK errors into the shared fault taxonomy.
func (c *Client) mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewProviderError(c.id, domain.FaultTimeout, 0, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		var fault domain.Fault
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			fault = domain.FaultAuthFailed
		case apiErr.Code == 429:
			fault = domain.FaultRateLimited
		case apiErr.Code == 408 || apiErr.Code == 504:
			fault = domain.FaultTimeout
		case apiErr.Code >= 400 && apiErr.Code < 500:
			fault = domain.FaultInvalidRequest
		default:
			fault = domain.FaultUnavailable
		}
		return domain.NewProviderError(c.id, fault, apiErr.Code,
			fmt.Errorf("api error: %s", apiErr.Message))
	}

	return domain.NewProviderError(c.id, domain.FaultUnavailable, 0, err)
}
