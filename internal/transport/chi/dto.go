package chi

import (
	"fmt"

	"github.com/kailas-cloud/modelmux/internal/domain"
	domdoc "github.com/kailas-cloud/modelmux/internal/domain/document"
	"github.com/kailas-cloud/modelmux/internal/domain/ingest"
	"github.com/kailas-cloud/modelmux/internal/domain/retrieval"
	domusage "github.com/kailas-cloud/modelmux/internal/domain/usage"
	raguc "github.com/kailas-cloud/modelmux/internal/usecase/rag"
	usageuc "github.com/kailas-cloud/modelmux/internal/usecase/usage"
)

// Error codes returned in the JSON error body.
const (
	codeBadRequest           = "bad_request"
	codeValidationFailed     = "validation_failed"
	codeDocumentNotFound     = "document_not_found"
	codeVectorDimMismatch    = "vector_dim_mismatch"
	codeCapabilityMissing    = "capability_not_supported"
	codeRateLimited          = "rate_limited"
	codeUpstreamTimeout      = "upstream_timeout"
	codeAllProvidersFailed   = "all_providers_failed"
	codeVectorStoreError     = "vector_store_error"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type generateRequest struct {
	Messages    []messageDTO `json:"messages,omitempty"`
	Prompt      string       `json:"prompt,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float32      `json:"temperature,omitempty"`
	Provider    string       `json:"provider,omitempty"`
}

type usageDTO struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type generateResponse struct {
	Content      string   `json:"content"`
	Model        string   `json:"model"`
	Provider     string   `json:"provider"`
	FinishReason string   `json:"finish_reason,omitempty"`
	Usage        usageDTO `json:"usage"`
}

type visionRequest struct {
	Prompt      string  `json:"prompt"`
	ImageURL    string  `json:"image_url,omitempty"`
	ImageBase64 string  `json:"image_base64,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

type embeddingsRequest struct {
	Input    []string `json:"input"`
	Provider string   `json:"provider,omitempty"`
}

type embeddingsResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model"`
	Provider   string      `json:"provider"`
	Usage      usageDTO    `json:"usage"`
}

type ingestItem struct {
	ID       string             `json:"id"`
	Content  string             `json:"content"`
	Tags     map[string]string  `json:"tags,omitempty"`
	Numerics map[string]float64 `json:"numerics,omitempty"`
}

type ingestRequest struct {
	Documents []ingestItem `json:"documents"`
}

type ingestResultItem struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	PersistedIDs []string       `json:"persisted_ids,omitempty"`
	Error        *errorResponse `json:"error,omitempty"`
}

type ingestResponse struct {
	Items     []ingestResultItem `json:"items"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

type deleteDocumentsRequest struct {
	IDs []string `json:"ids"`
}

type ragQueryRequest struct {
	Question       string            `json:"question"`
	Filter         map[string]string `json:"filter,omitempty"`
	TopK           int               `json:"top_k,omitempty"`
	ScoreThreshold *float64          `json:"score_threshold,omitempty"`
}

type sourceDTO struct {
	ID      string            `json:"id"`
	Content string            `json:"content"`
	Score   float64           `json:"score"`
	Tags    map[string]string `json:"tags,omitempty"`
}

type ragQueryResponse struct {
	Answer   string      `json:"answer"`
	Model    string      `json:"model"`
	Provider string      `json:"provider"`
	Usage    usageDTO    `json:"usage"`
	Sources  []sourceDTO `json:"sources"`
}

type evaluateRequest struct {
	Candidate  string   `json:"candidate"`
	References []string `json:"references"`
}

type rougeDTO struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

type evaluateResponse struct {
	BLEU   float64  `json:"bleu"`
	ROUGEL rougeDTO `json:"rouge_l"`
}

type totalsDTO struct {
	Requests         int     `json:"requests"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

type usageSummaryResponse struct {
	Totals     totalsDTO            `json:"totals"`
	Unpriced   int                  `json:"unpriced"`
	ByProvider map[string]totalsDTO `json:"by_provider"`
	ByModel    map[string]totalsDTO `json:"by_model"`
	ByDay      map[string]totalsDTO `json:"by_day"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func generationFromDTO(req generateRequest) (domain.GenerationRequest, error) {
	msgs := make([]domain.Message, 0, len(req.Messages))
	for i, m := range req.Messages {
		msg, err := domain.NewMessage(domain.Role(m.Role), m.Content)
		if err != nil {
			return domain.GenerationRequest{}, fmt.Errorf("message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	return domain.GenerationRequest{
		Messages:     msgs,
		Prompt:       req.Prompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		ProviderHint: req.Provider,
	}, nil
}

func generationToDTO(res domain.GenerationResult) generateResponse {
	return generateResponse{
		Content:      res.Content,
		Model:        res.ModelID,
		Provider:     res.ProviderID,
		FinishReason: res.FinishReason,
		Usage:        usageToDTO(res.Usage),
	}
}

func usageToDTO(u domain.TokenUsage) usageDTO {
	return usageDTO{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func documentFromIngestItem(item ingestItem) (domdoc.Document, error) {
	doc, err := domdoc.New(item.ID, item.Content, item.Tags, item.Numerics)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("build document: %w", err)
	}
	return doc, nil
}

func ingestReportToDTO(report ingest.Report) ingestResponse {
	results := report.Results()
	resp := ingestResponse{Items: make([]ingestResultItem, len(results))}
	for i, res := range results {
		item := ingestResultItem{
			ID:           res.ID(),
			Status:       string(res.Status()),
			PersistedIDs: res.Persisted(),
		}
		if res.Err() != nil {
			item.Error = &errorResponse{
				Code:    ingestErrorCode(res.Err()),
				Message: safeDomainMessage(res.Err()),
			}
		}
		resp.Items[i] = item
		if res.Status() == ingest.StatusOK {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	return resp
}

func answerToDTO(ans raguc.Answer) ragQueryResponse {
	resp := ragQueryResponse{
		Answer:   ans.Content,
		Model:    ans.ModelID,
		Provider: ans.ProviderID,
		Usage:    usageToDTO(ans.Usage),
		Sources:  make([]sourceDTO, len(ans.Sources)),
	}
	for i := range ans.Sources {
		resp.Sources[i] = sourceToDTO(&ans.Sources[i])
	}
	return resp
}

func sourceToDTO(r *retrieval.Result) sourceDTO {
	doc := r.Document()
	dto := sourceDTO{
		ID:      doc.ID(),
		Content: doc.Content(),
		Score:   r.Score(),
	}
	if len(doc.Tags()) > 0 {
		dto.Tags = doc.Tags()
	}
	return dto
}

func totalsToDTO(t domusage.Totals) totalsDTO {
	return totalsDTO{
		Requests:         t.Requests,
		PromptTokens:     t.PromptTokens,
		CompletionTokens: t.CompletionTokens,
		CostUSD:          t.CostUSD,
	}
}

func summaryToDTO(s usageuc.Summary) usageSummaryResponse {
	resp := usageSummaryResponse{
		Totals:     totalsToDTO(s.Totals),
		Unpriced:   s.Unpriced,
		ByProvider: make(map[string]totalsDTO, len(s.ByProvider)),
		ByModel:    make(map[string]totalsDTO, len(s.ByModel)),
		ByDay:      make(map[string]totalsDTO, len(s.ByDay)),
	}
	for k, v := range s.ByProvider {
		resp.ByProvider[k] = totalsToDTO(v)
	}
	for k, v := range s.ByModel {
		resp.ByModel[k] = totalsToDTO(v)
	}
	for k, v := range s.ByDay {
		resp.ByDay[k] = totalsToDTO(v)
	}
	return resp
}
