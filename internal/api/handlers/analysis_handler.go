package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ledgerlens/ledgerlens/internal/api/response"
	"github.com/ledgerlens/ledgerlens/internal/models"
	"github.com/ledgerlens/ledgerlens/internal/observability"
)

// DriftService defines the counterparty drift detection interface.
type DriftService interface {
	NewCounterparties(
		ctx context.Context, currentDays, historicalDays int, filter models.TransactionFilter,
	) ([]models.DriftRow, error)
}

// AnomalyService defines the amount anomaly detection interface.
type AnomalyService interface {
	AmountAnomalies(
		ctx context.Context, currentDays, lookbackDays int, multiplier float64, filter models.TransactionFilter,
	) ([]models.AnomalyRow, error)
}

// AnalysisHandler handles HTTP requests for the window-based detectors.
type AnalysisHandler struct {
	drift   DriftService
	anomaly AnomalyService
	metrics observability.AnalysisMetrics
}

// NewAnalysisHandler creates a new analysis handler. metrics may be nil.
func NewAnalysisHandler(drift DriftService, anomaly AnomalyService, metrics observability.AnalysisMetrics) *AnalysisHandler {
	return &AnalysisHandler{drift: drift, anomaly: anomaly, metrics: metrics}
}

// NewCounterpartiesRequest is the body for POST /v1/analysis/new-counterparties.
// Windows are in days; the historical window sits immediately before the current one.
type NewCounterpartiesRequest struct {
	CurrentDays    int                      `json:"current_days"`
	HistoricalDays int                      `json:"historical_days"`
	Filter         models.TransactionFilter `json:"filter,omitempty"`
}

// NewCounterpartiesResponse lists current-window transactions from counterparties
// unseen in the historical window.
type NewCounterpartiesResponse struct {
	Results []models.DriftRow `json:"results"`
}

// NewCounterparties handles POST /v1/analysis/new-counterparties.
func (h *AnalysisHandler) NewCounterparties(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req NewCounterpartiesRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	rows, err := h.drift.NewCounterparties(r.Context(), req.CurrentDays, req.HistoricalDays, req.Filter)
	if err != nil {
		h.record(r.Context(), "new_counterparties", "error", start)
		respondServiceError(w, err, "Counterparty analysis failed")

		return
	}

	h.record(r.Context(), "new_counterparties", "success", start)

	if rows == nil {
		rows = []models.DriftRow{}
	}

	response.RespondJSON(w, http.StatusOK, NewCounterpartiesResponse{Results: rows})
}

// AmountAnomaliesRequest is the body for POST /v1/analysis/amount-anomalies.
// The lookback window for baselines sits immediately before the current window.
// Multiplier overrides the configured threshold for this request (0 = default).
type AmountAnomaliesRequest struct {
	CurrentDays  int                      `json:"current_days"`
	LookbackDays int                      `json:"lookback_days"`
	Multiplier   float64                  `json:"multiplier,omitempty"`
	Filter       models.TransactionFilter `json:"filter,omitempty"`
}

// AmountAnomaliesResponse carries one row per current-window transaction.
type AmountAnomaliesResponse struct {
	Results []models.AnomalyRow `json:"results"`
}

// AmountAnomalies handles POST /v1/analysis/amount-anomalies.
func (h *AnalysisHandler) AmountAnomalies(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AmountAnomaliesRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	rows, err := h.anomaly.AmountAnomalies(r.Context(), req.CurrentDays, req.LookbackDays, req.Multiplier, req.Filter)
	if err != nil {
		h.record(r.Context(), "amount_anomalies", "error", start)
		respondServiceError(w, err, "Anomaly analysis failed")

		return
	}

	h.record(r.Context(), "amount_anomalies", "success", start)

	if rows == nil {
		rows = []models.AnomalyRow{}
	}

	response.RespondJSON(w, http.StatusOK, AmountAnomaliesResponse{Results: rows})
}

func (h *AnalysisHandler) record(ctx context.Context, operation, status string, start time.Time) {
	if h.metrics == nil {
		return
	}

	h.metrics.RecordRequest(ctx, operation, status)
	h.metrics.RecordDuration(ctx, operation, time.Since(start))
}
