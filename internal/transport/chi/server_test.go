package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chirouter "github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/domain/chunk"
	"github.com/kailas-cloud/modelmux/internal/domain/pricing"
	domusage "github.com/kailas-cloud/modelmux/internal/domain/usage"
	"github.com/kailas-cloud/modelmux/internal/store/memory"
	healthuc "github.com/kailas-cloud/modelmux/internal/usecase/health"
	raguc "github.com/kailas-cloud/modelmux/internal/usecase/rag"
	routeruc "github.com/kailas-cloud/modelmux/internal/usecase/router"
	usageuc "github.com/kailas-cloud/modelmux/internal/usecase/usage"
	"go.uber.org/zap"
)

type scriptedProvider struct {
	id  string
	err error
}

func (p *scriptedProvider) ID() string { return p.id }

func (p *scriptedProvider) GenerateChat(_ context.Context, _ domain.GenerationRequest) (domain.GenerationResult, error) {
	if p.err != nil {
		return domain.GenerationResult{}, p.err
	}
	return domain.GenerationResult{
		Content:    "Paris is the capital of France.",
		ModelID:    "gpt-4",
		ProviderID: p.id,
		Usage:      domain.TokenUsage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
	}, nil
}

func (p *scriptedProvider) GenerateText(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	return p.GenerateChat(ctx, req)
}

func (p *scriptedProvider) GenerateEmbedding(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if p.err != nil {
		return domain.BatchEmbeddingResult{}, p.err
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{1, 0, 0}
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: 5 * len(texts),
		TotalTokens:  5 * len(texts),
		Provider:     p.id,
		Model:        "embed-3",
	}, nil
}

func (p *scriptedProvider) GenerateVision(_ context.Context, _ domain.VisionRequest) (domain.GenerationResult, error) {
	if p.err != nil {
		return domain.GenerationResult{}, p.err
	}
	return domain.GenerationResult{Content: "a cat", ModelID: "gpt-4", ProviderID: p.id}, nil
}

type nopLedger struct{}

func (nopLedger) Append(_ context.Context, _ domusage.Record) error { return nil }

type staticRecords []domusage.Record

func (s staticRecords) Snapshot() []domusage.Record { return s }

func newTestHandler(t *testing.T, provider *scriptedProvider, records []domusage.Record) http.Handler {
	t.Helper()

	table := pricing.NewBuilder().Set("primary", "gpt-4", 0.03, 0.06).Build()
	routerSvc := routeruc.New([]domain.Provider{provider}, table, nopLedger{}, zap.NewNop())

	ms := memory.New(3)
	ragSvc := raguc.New(ms, routerSvc, routerSvc, raguc.Config{
		Policy: chunk.MustNew(200, 20),
	})

	usageSvc := usageuc.New(staticRecords(records))
	healthSvc := healthuc.New(nil)

	server := NewServer(routerSvc, ragSvc, usageSvc, healthSvc, zap.NewNop())

	r := chirouter.NewRouter()
	server.Routes(r)
	return r
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestGenerate_ChatSuccess(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := postJSON(t, handler, "/v1/generate", generateRequest{
		Messages: []messageDTO{{Role: "user", Content: "What is the capital of France?"}},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp generateResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Provider != "primary" || resp.Model != "gpt-4" {
		t.Errorf("provider/model = %s/%s", resp.Provider, resp.Model)
	}
	if resp.Usage.TotalTokens != 2000 {
		t.Errorf("total tokens = %d, want 2000", resp.Usage.TotalTokens)
	}
}

func TestGenerate_InvalidRole_400(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := postJSON(t, handler, "/v1/generate", generateRequest{
		Messages: []messageDTO{{Role: "robot", Content: "hi"}},
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errResp.Code != codeValidationFailed {
		t.Errorf("code = %s, want %s", errResp.Code, codeValidationFailed)
	}
}

func TestGenerate_EmptyBody_400(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := postJSON(t, handler, "/v1/generate", generateRequest{})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestGenerate_RateLimitedEverywhere_502(t *testing.T) {
	provider := &scriptedProvider{
		id:  "primary",
		err: domain.NewProviderError("primary", domain.FaultRateLimited, 429, nil),
	}
	handler := newTestHandler(t, provider, nil)

	rr := postJSON(t, handler, "/v1/generate", generateRequest{Prompt: "hello"})

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errResp.Code != codeAllProvidersFailed {
		t.Errorf("code = %s, want %s", errResp.Code, codeAllProvidersFailed)
	}
}

func TestGenerate_AuthFailed_502(t *testing.T) {
	provider := &scriptedProvider{
		id:  "primary",
		err: domain.NewProviderError("primary", domain.FaultAuthFailed, 401, nil),
	}
	handler := newTestHandler(t, provider, nil)

	rr := postJSON(t, handler, "/v1/generate", generateRequest{Prompt: "hello"})

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestEmbeddings_Success(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := postJSON(t, handler, "/v1/embeddings", embeddingsRequest{Input: []string{"a", "b"}})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp embeddingsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Embeddings) != 2 {
		t.Errorf("embeddings = %d, want 2", len(resp.Embeddings))
	}
}

func TestRAG_IngestThenQuery(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := postJSON(t, handler, "/v1/rag/documents", ingestRequest{
		Documents: []ingestItem{
			{ID: "paris", Content: "Paris is the capital of France."},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body %s", rr.Code, rr.Body.String())
	}
	var ing ingestResponse
	if err := json.NewDecoder(rr.Body).Decode(&ing); err != nil {
		t.Fatalf("decode ingest response: %v", err)
	}
	if ing.Succeeded != 1 || ing.Failed != 0 {
		t.Fatalf("succeeded/failed = %d/%d", ing.Succeeded, ing.Failed)
	}

	rr = postJSON(t, handler, "/v1/rag/query", ragQueryRequest{
		Question: "What is the capital of France?",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("query status = %d, body %s", rr.Code, rr.Body.String())
	}
	var ans ragQueryResponse
	if err := json.NewDecoder(rr.Body).Decode(&ans); err != nil {
		t.Fatalf("decode query response: %v", err)
	}
	if ans.Answer != "Paris is the capital of France." {
		t.Errorf("answer = %q", ans.Answer)
	}
	if len(ans.Sources) != 1 {
		t.Fatalf("sources = %d, want 1", len(ans.Sources))
	}
}

func TestRAG_QueryHonorsPerRequestTopK(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := postJSON(t, handler, "/v1/rag/documents", ingestRequest{
		Documents: []ingestItem{
			{ID: "a", Content: "first fact"},
			{ID: "b", Content: "second fact"},
			{ID: "c", Content: "third fact"},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, handler, "/v1/rag/query", ragQueryRequest{
		Question: "what is known?",
		TopK:     1,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("query status = %d, body %s", rr.Code, rr.Body.String())
	}
	var ans ragQueryResponse
	if err := json.NewDecoder(rr.Body).Decode(&ans); err != nil {
		t.Fatalf("decode query response: %v", err)
	}
	if len(ans.Sources) != 1 {
		t.Errorf("sources = %d, want the requested top_k of 1", len(ans.Sources))
	}
}

func TestRAG_QueryRejectsBadRetrievalParams(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := postJSON(t, handler, "/v1/rag/query", ragQueryRequest{Question: "q", TopK: -1})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("negative top_k: status = %d, want 400", rr.Code)
	}

	bad := 1.5
	rr = postJSON(t, handler, "/v1/rag/query", ragQueryRequest{Question: "q", ScoreThreshold: &bad})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range threshold: status = %d, want 400", rr.Code)
	}
}

func TestRAG_IngestLongDocumentReportsChunkIDs(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := postJSON(t, handler, "/v1/rag/documents", ingestRequest{
		Documents: []ingestItem{
			{ID: "guide", Content: strings.Repeat("every city has one capital fact. ", 20)},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body %s", rr.Code, rr.Body.String())
	}
	var ing ingestResponse
	if err := json.NewDecoder(rr.Body).Decode(&ing); err != nil {
		t.Fatalf("decode ingest response: %v", err)
	}
	if len(ing.Items) != 1 || ing.Items[0].ID != "guide" {
		t.Fatalf("items = %+v", ing.Items)
	}
	ids := ing.Items[0].PersistedIDs
	if len(ids) < 2 {
		t.Fatalf("persisted_ids = %v, want several chunk ids", ids)
	}
	for _, id := range ids {
		if !strings.HasPrefix(id, "guide#") {
			t.Errorf("persisted id = %q, want a derived chunk id", id)
		}
	}
}

func TestRAG_IngestEmptyBatch_400(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := postJSON(t, handler, "/v1/rag/documents", ingestRequest{})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestRAG_DeleteDocuments_204(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	raw, _ := json.Marshal(deleteDocumentsRequest{IDs: []string{"paris"}})
	req := httptest.NewRequest("DELETE", "/v1/rag/documents", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
}

func TestUsage_SummaryAndFilters(t *testing.T) {
	records := []domusage.Record{
		{
			Timestamp:    time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
			Provider:     "openai",
			Model:        "gpt-4",
			Op:           domusage.OpChat,
			PromptTokens: 100, CompletionTokens: 50,
			CostUSD: 0.006, Priced: true,
		},
		{
			Timestamp:    time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC),
			Provider:     "bedrock",
			Model:        "titan",
			Op:           domusage.OpEmbedding,
			PromptTokens: 40,
		},
	}
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, records)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/usage", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp usageSummaryResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Totals.Requests != 2 || resp.Unpriced != 1 {
		t.Errorf("requests/unpriced = %d/%d", resp.Totals.Requests, resp.Unpriced)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/usage?provider=openai", http.NoBody))
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode filtered response: %v", err)
	}
	if resp.Totals.Requests != 1 {
		t.Errorf("filtered requests = %d, want 1", resp.Totals.Requests)
	}
}

func TestUsage_BadOpParam_400(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/usage?op=banana", http.NoBody))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestEvaluate_PicksBestReference(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := postJSON(t, handler, "/v1/rag/evaluate", evaluateRequest{
		Candidate:  "paris is the capital of france",
		References: []string{"london is the capital of the uk", "paris is the capital of france"},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp evaluateResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.BLEU != 1 {
		t.Errorf("bleu = %g, want 1 for the exact-match reference", resp.BLEU)
	}
	if resp.ROUGEL.F1 != 1 {
		t.Errorf("rouge-l f1 = %g, want 1", resp.ROUGEL.F1)
	}
}

func TestEvaluate_MissingReferences_400(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := postJSON(t, handler, "/v1/rag/evaluate", evaluateRequest{Candidate: "paris"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHealthz_OK(t *testing.T) {
	handler := newTestHandler(t, &scriptedProvider{id: "primary"}, nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(healthuc.Healthy) {
		t.Errorf("status = %q", resp.Status)
	}
}
