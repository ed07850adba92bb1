// Package chi implements the HTTP JSON transport. It is a thin shell:
// every handler decodes, delegates to a usecase service and encodes.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/modelmux/internal/domain"
	domdoc "github.com/kailas-cloud/modelmux/internal/domain/document"
	domusage "github.com/kailas-cloud/modelmux/internal/domain/usage"
	"github.com/kailas-cloud/modelmux/internal/store"
	"github.com/kailas-cloud/modelmux/internal/usecase/eval"
	healthuc "github.com/kailas-cloud/modelmux/internal/usecase/health"
	raguc "github.com/kailas-cloud/modelmux/internal/usecase/rag"
	routeruc "github.com/kailas-cloud/modelmux/internal/usecase/router"
	usageuc "github.com/kailas-cloud/modelmux/internal/usecase/usage"
)

const maxIngestBatch = 100

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the usecase services behind the HTTP handlers.
type Server struct {
	router        *routeruc.Service
	rag           *raguc.Service
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	router *routeruc.Service,
	rag *raguc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router: router,
		rag:    rag,
		usage:  usage,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		providerFaultHandler,
		allProvidersFailedHandler,
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, codeDocumentNotFound),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch),
		sentinelHandler(domain.ErrCapabilityNotSupported, http.StatusNotImplemented, codeCapabilityMissing),
		sentinelHandler(domain.ErrVectorStore, http.StatusBadGateway, codeVectorStoreError),
		sentinelHandler(domain.ErrConfiguration, http.StatusInternalServerError, codeInternalError),
	}
	return s
}

// Routes mounts all API endpoints on the router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/generate", s.Generate)
		r.Post("/vision", s.GenerateVision)
		r.Post("/embeddings", s.Embeddings)
		r.Route("/rag", func(r chi.Router) {
			r.Post("/documents", s.IngestDocuments)
			r.Delete("/documents", s.DeleteDocuments)
			r.Post("/query", s.RAGQuery)
			r.Post("/evaluate", s.EvaluateAnswer)
		})
		r.Get("/usage", s.Usage)
	})
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Generate handles POST /v1/generate. Requests carrying messages go to
// the chat capability; prompt-only requests use legacy completion.
func (s *Server) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	genReq, err := generationFromDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	var res domain.GenerationResult
	if len(genReq.Messages) > 0 {
		res, err = s.router.GenerateChat(r.Context(), genReq)
	} else {
		res, err = s.router.GenerateText(r.Context(), genReq)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generationToDTO(res))
}

// GenerateVision handles POST /v1/vision.
func (s *Server) GenerateVision(w http.ResponseWriter, r *http.Request) {
	var req visionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.router.GenerateVision(r.Context(), domain.VisionRequest{
		Prompt:      req.Prompt,
		ImageURL:    req.ImageURL,
		ImageBase64: req.ImageBase64,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generationToDTO(res))
}

// Embeddings handles POST /v1/embeddings.
func (s *Server) Embeddings(w http.ResponseWriter, r *http.Request) {
	var req embeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.router.GenerateEmbedding(r.Context(), req.Input)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, embeddingsResponse{
		Embeddings: res.Embeddings,
		Model:      res.Model,
		Provider:   res.Provider,
		Usage: usageDTO{
			PromptTokens: res.PromptTokens,
			TotalTokens:  res.TotalTokens,
		},
	})
}

// IngestDocuments handles POST /v1/rag/documents.
func (s *Server) IngestDocuments(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Documents) == 0 || len(req.Documents) > maxIngestBatch {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"documents count must be between 1 and 100")
		return
	}

	docs := make([]domdoc.Document, 0, len(req.Documents))
	for _, item := range req.Documents {
		doc, err := documentFromIngestItem(item)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
			return
		}
		docs = append(docs, doc)
	}

	report := s.rag.Ingest(r.Context(), docs)
	resp := ingestReportToDTO(report)

	status := http.StatusOK
	if resp.Succeeded == 0 && resp.Failed > 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

// DeleteDocuments handles DELETE /v1/rag/documents.
func (s *Server) DeleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req deleteDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := s.rag.Forget(r.Context(), req.IDs); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RAGQuery handles POST /v1/rag/query.
func (s *Server) RAGQuery(w http.ResponseWriter, r *http.Request) {
	var req ragQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "top_k must be non-negative")
		return
	}
	if req.ScoreThreshold != nil && (*req.ScoreThreshold < 0 || *req.ScoreThreshold > 1) {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "score_threshold must be between 0 and 1")
		return
	}

	var filter store.Filter
	if len(req.Filter) > 0 {
		filter = store.Filter(req.Filter)
	}

	answer, err := s.rag.Query(r.Context(), req.Question, filter, raguc.QueryOptions{
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answerToDTO(answer))
}

// EvaluateAnswer handles POST /v1/rag/evaluate. Scores a candidate
// answer against each reference and returns the best report: highest
// BLEU and highest-F1 ROUGE-L.
func (s *Server) EvaluateAnswer(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Candidate == "" || len(req.References) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"candidate and at least one reference are required")
		return
	}

	var best evaluateResponse
	for _, ref := range req.References {
		rep := eval.Evaluate(req.Candidate, ref)
		if rep.BLEU > best.BLEU {
			best.BLEU = rep.BLEU
		}
		if rep.ROUGEL.F1 > best.ROUGEL.F1 {
			best.ROUGEL = rougeDTO{
				Precision: rep.ROUGEL.Precision,
				Recall:    rep.ROUGEL.Recall,
				F1:        rep.ROUGEL.F1,
			}
		}
	}

	writeJSON(w, http.StatusOK, best)
}

// Usage handles GET /v1/usage.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	filter, err := usageFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	summary := s.usage.Summarize(filter)
	writeJSON(w, http.StatusOK, summaryToDTO(summary))
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func usageFilterFromQuery(r *http.Request) (usageuc.Filter, error) {
	q := r.URL.Query()
	filter := usageuc.Filter{
		Provider: q.Get("provider"),
		Model:    q.Get("model"),
	}

	if op := q.Get("op"); op != "" {
		switch domusage.Operation(op) {
		case domusage.OpChat, domusage.OpText, domusage.OpEmbedding, domusage.OpVision:
			filter.Op = domusage.Operation(op)
		default:
			return usageuc.Filter{}, errors.New("op must be one of chat, text, embedding, vision")
		}
	}

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return usageuc.Filter{}, errors.New("since must be RFC3339")
		}
		filter.Since = t
	}
	if until := q.Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return usageuc.Filter{}, errors.New("until must be RFC3339")
		}
		filter.Until = t
	}

	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrDocumentNotFound,
		domain.ErrVectorDimMismatch,
		domain.ErrCapabilityNotSupported,
		domain.ErrVectorStore,
		domain.ErrConfiguration,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	if kind, ok := domain.FaultOf(err); ok {
		return "provider error: " + string(kind)
	}
	var apf *domain.AllProvidersFailed
	if errors.As(err, &apf) {
		return apf.Error()
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// providerFaultHandler maps classified provider faults to HTTP statuses.
func providerFaultHandler(w http.ResponseWriter, err error, msg string) bool {
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Kind {
	case domain.FaultRateLimited:
		writeError(w, http.StatusTooManyRequests, codeRateLimited, msg)
	case domain.FaultTimeout:
		writeError(w, http.StatusGatewayTimeout, codeUpstreamTimeout, msg)
	case domain.FaultInvalidRequest:
		writeError(w, http.StatusBadRequest, codeValidationFailed, msg)
	default: // auth_failed, unavailable: the backend is unusable, not the client
		writeError(w, http.StatusBadGateway, codeInternalError, msg)
	}
	return true
}

// allProvidersFailedHandler handles an exhausted preference list.
func allProvidersFailedHandler(w http.ResponseWriter, err error, msg string) bool {
	var apf *domain.AllProvidersFailed
	if !errors.As(err, &apf) {
		return false
	}
	writeError(w, http.StatusBadGateway, codeAllProvidersFailed, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// ingestErrorCode classifies a per-document ingest failure.
func ingestErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return codeValidationFailed
	case errors.Is(err, domain.ErrVectorDimMismatch):
		return codeVectorDimMismatch
	case errors.Is(err, domain.ErrVectorStore):
		return codeVectorStoreError
	default:
		if _, ok := domain.FaultOf(err); ok {
			return codeAllProvidersFailed
		}
		return codeInternalError
	}
}
