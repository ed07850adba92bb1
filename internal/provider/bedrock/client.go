// Package bedrock adapts Amazon Bedrock models to the domain Provider
// capability interface. Text generation goes through the Converse API
// so any Bedrock chat model works unchanged; embeddings use InvokeModel
// with the Titan JSON body.
package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/metrics"
)

// Client is a provider backed by Amazon Bedrock.
type Client struct {
	id             string
	api            *bedrockruntime.Client
	model          string
	embeddingModel string
	visionModel    string
	logger         *zap.Logger
}

// Config holds the adapter settings. Credentials come from the default
// AWS chain (env, shared config, instance role).
type Config struct {
	ID             string
	Region         string
	Model          string
	EmbeddingModel string
	VisionModel    string // defaults to Model
	Logger         *zap.Logger
}

// New creates a Bedrock provider adapter.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
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
		api:            bedrockruntime.NewFromConfig(awsCfg),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		visionModel:    visionModel,
		logger:         logger,
	}, nil
}

// ID implements domain.Provider.
func (c *Client) ID() string { return c.id }

// GenerateChat implements domain.Provider.
func (c *Client) GenerateChat(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	req = req.Normalized()

	var system []types.SystemContentBlock
	var messages []types.Message
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
		case domain.RoleAssistant:
			messages = append(messages, textMessage(types.ConversationRoleAssistant, m.Content))
		default:
			messages = append(messages, textMessage(types.ConversationRoleUser, m.Content))
		}
	}

	return c.converse(ctx, "chat", c.model, messages, system, req.MaxTokens, req.Temperature)
}

// GenerateText implements domain.Provider. Bedrock has no separate
// completions endpoint, the prompt is sent as a single user turn.
func (c *Client) GenerateText(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	req = req.Normalized()
	messages := []types.Message{textMessage(types.ConversationRoleUser, req.Prompt)}
	return c.converse(ctx, "text", c.model, messages, nil, req.MaxTokens, req.Temperature)
}

// GenerateEmbedding implements domain.Provider. Titan embedding models
// take one text per call, the batch is issued sequentially.
func (c *Client) GenerateEmbedding(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if c.embeddingModel == "" {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"provider %s has no embedding model configured: %w", c.id, domain.ErrCapabilityNotSupported)
	}

	result := domain.BatchEmbeddingResult{
		Embeddings: make([][]float32, 0, len(texts)),
		Provider:   c.id,
		Model:      c.embeddingModel,
	}

	for _, text := range texts {
		body, err := json.Marshal(map[string]string{"inputText": text})
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("marshal embedding request: %w", err)
		}

		start := time.Now()
		out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(c.embeddingModel),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		c.observe("embedding", c.embeddingModel, start, err)
		if err != nil {
			return domain.BatchEmbeddingResult{}, c.mapError(err)
		}

		var parsed struct {
			Embedding           []float32 `json:"embedding"`
			InputTextTokenCount int       `json:"inputTextTokenCount"`
		}
		if err := json.Unmarshal(out.Body, &parsed); err != nil {
			return domain.BatchEmbeddingResult{}, domain.NewProviderError(
				c.id, domain.FaultUnavailable, 0, fmt.Errorf("decode embedding response: %w", err))
		}

		result.Embeddings = append(result.Embeddings, parsed.Embedding)
		result.PromptTokens += parsed.InputTextTokenCount
		result.TotalTokens += parsed.InputTextTokenCount
	}

	return result, nil
}

// GenerateVision implements domain.Provider. Converse takes raw image
// bytes only, so URL sources are rejected.
func (c *Client) GenerateVision(ctx context.Context, req domain.VisionRequest) (domain.GenerationResult, error) {
	if req.ImageBase64 == "" {
		return domain.GenerationResult{}, fmt.Errorf(
			"provider %s accepts inline images only: %w", c.id, domain.ErrCapabilityNotSupported)
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return domain.GenerationResult{}, domain.NewProviderError(
			c.id, domain.FaultInvalidRequest, 0, fmt.Errorf("decode image: %w", err))
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = domain.DefaultMaxTokens
	}

	messages := []types.Message{{
		Role: types.ConversationRoleUser,
		Content: []types.ContentBlock{
			&types.ContentBlockMemberText{Value: req.Prompt},
			&types.ContentBlockMemberImage{Value: types.ImageBlock{
				Format: types.ImageFormatJpeg,
				Source: &types.ImageSourceMemberBytes{Value: data},
			}},
		},
	}}

	return c.converse(ctx, "vision", c.visionModel, messages, nil, maxTokens, req.Temperature)
}

// HealthCheck verifies credentials and model access with an empty-ish
// converse call kept as cheap as possible.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.model),
		Messages: []types.Message{textMessage(types.ConversationRoleUser, "ping")},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(1),
		},
	})
	if err != nil {
		return fmt.Errorf("converse: %w", err)
	}
	return nil
}

func (c *Client) converse(ctx context.Context, op, model string, messages []types.Message, system []types.SystemContentBlock, maxTokens int, temperature float32) (domain.GenerationResult, error) {
	start := time.Now()
	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
		System:   system,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)),
			Temperature: aws.Float32(temperature),
		},
	})
	c.observe(op, model, start, err)
	if err != nil {
		return domain.GenerationResult{}, c.mapError(err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return domain.GenerationResult{}, domain.NewProviderError(
			c.id, domain.FaultUnavailable, 0, errors.New("empty converse response"))
	}
	text, ok := msg.Value.Content[0].(*types.ContentBlockMemberText)
	if !ok {
		return domain.GenerationResult{}, domain.NewProviderError(
			c.id, domain.FaultUnavailable, 0, errors.New("non-text converse response"))
	}

	result := domain.GenerationResult{
		Content:      text.Value,
		ModelID:      model,
		ProviderID:   c.id,
		FinishReason: string(out.StopReason),
	}
	if out.Usage != nil {
		result.Usage = domain.TokenUsage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return result, nil
}

func textMessage(role types.ConversationRole, content string) types.Message {
	return types.Message{
		Role:    role,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: content}},
	}
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

// mapError classifies Bedrock SDK errors into the shared fault taxonomy.
func (c *Client) mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewProviderError(c.id, domain.FaultTimeout, 0, err)
	}

	var (
		throttled    *types.ThrottlingException
		validation   *types.ValidationException
		accessDenied *types.AccessDeniedException
		timeout      *types.ModelTimeoutException
		unavailable  *types.ServiceUnavailableException
		notFound     *types.ResourceNotFoundException
	)
	switch {
	case errors.As(err, &throttled):
		return domain.NewProviderError(c.id, domain.FaultRateLimited, 429, err)
	case errors.As(err, &accessDenied):
		return domain.NewProviderError(c.id, domain.FaultAuthFailed, 403, err)
	case errors.As(err, &validation):
		return domain.NewProviderError(c.id, domain.FaultInvalidRequest, 400, err)
	case errors.As(err, &notFound):
		return domain.NewProviderError(c.id, domain.FaultInvalidRequest, 404, err)
	case errors.As(err, &timeout):
		return domain.NewProviderError(c.id, domain.FaultTimeout, 408, err)
	case errors.As(err, &unavailable):
		return domain.NewProviderError(c.id, domain.FaultUnavailable, 503, err)
	default:
		return domain.NewProviderError(c.id, domain.FaultUnavailable, 0, err)
	}
}
