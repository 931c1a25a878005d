package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerlens/ledgerlens/internal/api/response"
	"github.com/ledgerlens/ledgerlens/internal/models"
	"github.com/ledgerlens/ledgerlens/internal/observability"
	"github.com/ledgerlens/ledgerlens/internal/service"
)

// RetrievalService defines the interface for semantic search and similar transactions.
type RetrievalService interface {
	Search(ctx context.Context, query string, intent models.Intent, topN int) ([]models.TransactionWithScore, error)
	SimilarTransactions(ctx context.Context, transactionID uuid.UUID, topN int) ([]models.TransactionWithScore, error)
}

// SearchHandler handles HTTP requests for semantic search and similar transactions.
type SearchHandler struct {
	service RetrievalService
	metrics observability.AnalysisMetrics
}

// NewSearchHandler creates a new search handler. metrics may be nil.
func NewSearchHandler(service RetrievalService, metrics observability.AnalysisMetrics) *SearchHandler {
	return &SearchHandler{service: service, metrics: metrics}
}

// SemanticSearchRequest is the body for POST /v1/transactions/search/semantic.
// Intent is optional; when empty the keyword classifier decides.
type SemanticSearchRequest struct {
	Query  string `json:"query"`
	Intent string `json:"intent,omitempty"`
	TopN   int    `json:"top_n,omitempty"`
}

// SemanticSearchResponse is the response for semantic search and similar transactions.
type SemanticSearchResponse struct {
	Intent  models.Intent                 `json:"intent,omitempty"`
	Results []models.TransactionWithScore `json:"results"`
}

// SemanticSearch handles POST /v1/transactions/search/semantic.
func (h *SearchHandler) SemanticSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req SemanticSearchRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	intent := models.Intent(req.Intent)
	if req.Intent == "" {
		intent = service.ClassifyIntent(req.Query)
	}

	results, err := h.service.Search(r.Context(), req.Query, intent, req.TopN)
	if err != nil {
		h.record(r.Context(), "semantic_search", "error", start)
		respondServiceError(w, err, "Search failed")

		return
	}

	h.record(r.Context(), "semantic_search", "success", start)

	if results == nil {
		results = []models.TransactionWithScore{}
	}

	response.RespondJSON(w, http.StatusOK, SemanticSearchResponse{Intent: intent, Results: results})
}

// SimilarTransactions handles GET /v1/transactions/{id}/similar.
func (h *SearchHandler) SimilarTransactions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid transaction ID")

		return
	}

	topN := 0
	if s := r.URL.Query().Get("top_n"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			topN = n
		}
	}

	results, err := h.service.SimilarTransactions(r.Context(), id, topN)
	if err != nil {
		if errors.Is(err, service.ErrEmbeddingNotFound) {
			h.record(r.Context(), "similar", "not_found", start)
			response.RespondNotFound(w, "Transaction has no embedding for the current model")

			return
		}

		h.record(r.Context(), "similar", "error", start)
		respondServiceError(w, err, "Similar transactions failed")

		return
	}

	h.record(r.Context(), "similar", "success", start)

	if results == nil {
		results = []models.TransactionWithScore{}
	}

	response.RespondJSON(w, http.StatusOK, SemanticSearchResponse{Results: results})
}

func (h *SearchHandler) record(ctx context.Context, operation, status string, start time.Time) {
	if h.metrics == nil {
		return
	}

	h.metrics.RecordRequest(ctx, operation, status)
	h.metrics.RecordDuration(ctx, operation, time.Since(start))
}
