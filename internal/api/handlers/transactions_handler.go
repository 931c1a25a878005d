package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerlens/ledgerlens/internal/api/response"
	"github.com/ledgerlens/ledgerlens/internal/models"
	"github.com/ledgerlens/ledgerlens/internal/observability"
	"github.com/ledgerlens/ledgerlens/internal/repository"
)

// LabelingService defines the ingestion interface: embed, label, and store one transaction.
type LabelingService interface {
	Ingest(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
}

// TransactionGetter loads a single transaction by ID.
type TransactionGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

// TransactionsHandler handles HTTP requests for transaction ingestion and lookup.
type TransactionsHandler struct {
	labeling LabelingService
	getter   TransactionGetter
	metrics  observability.AnalysisMetrics
}

// NewTransactionsHandler creates a new transactions handler. metrics may be nil.
func NewTransactionsHandler(
	labeling LabelingService, getter TransactionGetter, metrics observability.AnalysisMetrics,
) *TransactionsHandler {
	return &TransactionsHandler{labeling: labeling, getter: getter, metrics: metrics}
}

// CreateTransactionRequest is the body for POST /v1/transactions.
// Amount is in minor currency units (cents); date is RFC 3339.
type CreateTransactionRequest struct {
	Description         string    `json:"description"`
	Amount              int64     `json:"amount"`
	Type                string    `json:"type"`
	Date                time.Time `json:"date"`
	CounterpartyAccount string    `json:"counterparty_account"`
	CounterpartyName    string    `json:"counterparty_name,omitempty"`
	CategoryCode        string    `json:"category_code,omitempty"`
}

// Create handles POST /v1/transactions: validates, embeds, assigns a label,
// and stores the transaction atomically.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req CreateTransactionRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	txn := &models.Transaction{
		Description:         req.Description,
		Amount:              req.Amount,
		Type:                models.TransactionType(req.Type),
		Date:                req.Date,
		CounterpartyAccount: req.CounterpartyAccount,
		CounterpartyName:    req.CounterpartyName,
		CategoryCode:        req.CategoryCode,
	}

	stored, err := h.labeling.Ingest(r.Context(), txn)
	if err != nil {
		h.record(r.Context(), "label_assignment", "error", start)
		respondServiceError(w, err, "Transaction ingestion failed")

		return
	}

	h.record(r.Context(), "label_assignment", "success", start)
	response.RespondJSON(w, http.StatusCreated, stored)
}

// Get handles GET /v1/transactions/{id}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid transaction ID")

		return
	}

	txn, err := h.getter.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			response.RespondNotFound(w, "Transaction not found")

			return
		}

		respondServiceError(w, err, "Transaction lookup failed")

		return
	}

	response.RespondJSON(w, http.StatusOK, txn)
}

func (h *TransactionsHandler) record(ctx context.Context, operation, status string, start time.Time) {
	if h.metrics == nil {
		return
	}

	h.metrics.RecordRequest(ctx, operation, status)
	h.metrics.RecordDuration(ctx, operation, time.Since(start))
}
