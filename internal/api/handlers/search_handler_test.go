package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/ledgerlens/internal/lenserrors"
	"github.com/ledgerlens/ledgerlens/internal/models"
	"github.com/ledgerlens/ledgerlens/internal/service"
)

type mockRetrievalService struct {
	searchFunc func(
		ctx context.Context, query string, intent models.Intent, topN int,
	) ([]models.TransactionWithScore, error)
	similarFunc func(
		ctx context.Context, transactionID uuid.UUID, topN int,
	) ([]models.TransactionWithScore, error)
}

func (m *mockRetrievalService) Search(
	ctx context.Context, query string, intent models.Intent, topN int,
) ([]models.TransactionWithScore, error) {
	return m.searchFunc(ctx, query, intent, topN)
}

func (m *mockRetrievalService) SimilarTransactions(
	ctx context.Context, transactionID uuid.UUID, topN int,
) ([]models.TransactionWithScore, error) {
	return m.similarFunc(ctx, transactionID, topN)
}

func TestSemanticSearch(t *testing.T) {
	t.Run("returns results with the classified intent", func(t *testing.T) {
		svc := &mockRetrievalService{
			searchFunc: func(
				_ context.Context, query string, intent models.Intent, topN int,
			) ([]models.TransactionWithScore, error) {
				assert.Equal(t, "highest amount in July", query)
				assert.Equal(t, models.IntentAmount, intent)
				assert.Equal(t, 5, topN)

				return []models.TransactionWithScore{
					{Transaction: models.Transaction{ID: uuid.New(), Amount: 5000}, Score: 0.91},
				}, nil
			},
		}

		handler := NewSearchHandler(svc, nil)

		body := `{"query":"highest amount in July","top_n":5}`
		req := httptest.NewRequest(http.MethodPost, "/v1/transactions/search/semantic", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp SemanticSearchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, models.IntentAmount, resp.Intent)
		require.Len(t, resp.Results, 1)
		assert.InDelta(t, 0.91, resp.Results[0].Score, 1e-9)
	})

	t.Run("explicit intent overrides the classifier", func(t *testing.T) {
		svc := &mockRetrievalService{
			searchFunc: func(
				_ context.Context, _ string, intent models.Intent, _ int,
			) ([]models.TransactionWithScore, error) {
				assert.Equal(t, models.IntentCombined, intent)

				return nil, nil
			},
		}

		handler := NewSearchHandler(svc, nil)

		body := `{"query":"highest amount","intent":"combined"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/transactions/search/semantic", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("empty query is a 400 with validation kind", func(t *testing.T) {
		svc := &mockRetrievalService{
			searchFunc: func(
				_ context.Context, _ string, _ models.Intent, _ int,
			) ([]models.TransactionWithScore, error) {
				return nil, service.ErrEmptyQuery
			},
		}

		handler := NewSearchHandler(svc, nil)

		req := httptest.NewRequest(http.MethodPost, "/v1/transactions/search/semantic", strings.NewReader(`{"query":""}`))
		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "validation_error")
	})

	t.Run("rate limited provider is a 429", func(t *testing.T) {
		svc := &mockRetrievalService{
			searchFunc: func(
				_ context.Context, _ string, _ models.Intent, _ int,
			) ([]models.TransactionWithScore, error) {
				return nil, fmt.Errorf("%w: %w",
					service.ErrEmbeddingUnavailable, lenserrors.NewRateLimitedError("429"))
			},
		}

		handler := NewSearchHandler(svc, nil)

		req := httptest.NewRequest(http.MethodPost, "/v1/transactions/search/semantic", strings.NewReader(`{"query":"x"}`))
		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, rec.Body.String(), "provider_rate_limited")
		// raw provider text never leaks
		assert.NotContains(t, rec.Body.String(), "429 too many requests")
	})

	t.Run("store failure is a 503", func(t *testing.T) {
		svc := &mockRetrievalService{
			searchFunc: func(
				_ context.Context, _ string, _ models.Intent, _ int,
			) ([]models.TransactionWithScore, error) {
				return nil, fmt.Errorf("%w: connection refused", service.ErrRetrievalUnavailable)
			},
		}

		handler := NewSearchHandler(svc, nil)

		req := httptest.NewRequest(http.MethodPost, "/v1/transactions/search/semantic", strings.NewReader(`{"query":"x"}`))
		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "store_unavailable")
	})

	t.Run("invalid body is a 400", func(t *testing.T) {
		handler := NewSearchHandler(&mockRetrievalService{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/v1/transactions/search/semantic", strings.NewReader(`{"qery":`))
		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSimilarTransactionsHandler(t *testing.T) {
	t.Run("missing embedding is a 404", func(t *testing.T) {
		svc := &mockRetrievalService{
			similarFunc: func(
				_ context.Context, _ uuid.UUID, _ int,
			) ([]models.TransactionWithScore, error) {
				return nil, service.ErrEmbeddingNotFound
			},
		}

		handler := NewSearchHandler(svc, nil)

		req := httptest.NewRequest(http.MethodGet, "/v1/transactions/"+uuid.NewString()+"/similar", nil)
		req.SetPathValue("id", uuid.NewString())
		rec := httptest.NewRecorder()

		handler.SimilarTransactions(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id is a 400", func(t *testing.T) {
		handler := NewSearchHandler(&mockRetrievalService{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/v1/transactions/nope/similar", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()

		handler.SimilarTransactions(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
