package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/ledgerlens/ledgerlens/internal/lenserrors"
	"github.com/ledgerlens/ledgerlens/internal/models"
	"github.com/ledgerlens/ledgerlens/internal/observability"
	"github.com/ledgerlens/ledgerlens/internal/repository"
	"github.com/ledgerlens/ledgerlens/pkg/embeddings"
)

const queryEmbeddingCacheName = "query_embedding"

// maxTopN caps how many neighbors a single retrieval may request.
const maxTopN = 100

// Sentinel errors for retrieval (used by handlers for status mapping).
var (
	// ErrEmptyQuery rejects empty or whitespace-only query text before any external call.
	ErrEmptyQuery = lenserrors.NewValidationError("query", "query is required and must be non-empty")
	// ErrInvalidIntent rejects intent overrides outside the known set.
	ErrInvalidIntent = lenserrors.NewValidationError("intent", "intent must be one of content, amount, date, category, combined")
	// ErrEmbeddingUnavailable marks a failed query-embedding generation. No partial results follow it.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrRetrievalUnavailable marks a failed nearest-neighbor scan. No partial
	// results follow it. It wraps the store sentinel so the HTTP layer maps it
	// to store_unavailable.
	ErrRetrievalUnavailable = fmt.Errorf("retrieval unavailable: %w", lenserrors.ErrStore)
	// ErrEmbeddingNotFound re-exports the repository sentinel for similar-transaction lookups.
	ErrEmbeddingNotFound = repository.ErrEmbeddingNotFound
)

// TransactionsRepositoryForSearch provides the read operations needed for similarity retrieval.
type TransactionsRepositoryForSearch interface {
	GetEmbedding(
		ctx context.Context, transactionID uuid.UUID, purpose models.EmbeddingPurpose, model string,
	) ([]float32, error)
	NearestByEmbedding(
		ctx context.Context, purpose models.EmbeddingPurpose, model string,
		queryEmbedding []float32, limit int, excludeID *uuid.UUID,
	) ([]models.TransactionWithScore, error)
}

// RetrievalService answers similarity queries over the per-purpose embedding
// indexes: classify (or accept) an intent, embed the query, scan the matching
// index by ascending distance, and order the hits for the intent.
type RetrievalService struct {
	embeddingClient EmbeddingClient
	repo            TransactionsRepositoryForSearch
	model           string
	defaultTopN     int
	queryCache      *lru.Cache[string, []float32]
	queryLoadGroup  singleflight.Group
	cacheMetrics    observability.CacheMetrics
	logger          *slog.Logger
}

// RetrievalServiceParams configures RetrievalService.
// QueryCache and CacheMetrics may be nil (no caching).
type RetrievalServiceParams struct {
	EmbeddingClient EmbeddingClient
	Repo            TransactionsRepositoryForSearch
	Model           string
	DefaultTopN     int
	QueryCache      *lru.Cache[string, []float32]
	CacheMetrics    observability.CacheMetrics
	Logger          *slog.Logger
}

// NewRetrievalService creates a RetrievalService.
func NewRetrievalService(p RetrievalServiceParams) *RetrievalService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	topN := p.DefaultTopN
	if topN <= 0 {
		topN = 20
	}

	return &RetrievalService{
		embeddingClient: p.EmbeddingClient,
		repo:            p.Repo,
		model:           p.Model,
		defaultTopN:     topN,
		queryCache:      p.QueryCache,
		cacheMetrics:    p.CacheMetrics,
		logger:          logger,
	}
}

// Search embeds the query text and returns the ordered nearest transactions
// for the intent. An empty intent runs the keyword classifier; an explicit
// intent (including "combined") overrides it. Failures are all-or-nothing:
// no partial result set is ever returned.
func (s *RetrievalService) Search(
	ctx context.Context, query string, intent models.Intent, topN int,
) ([]models.TransactionWithScore, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if intent == "" {
		intent = ClassifyIntent(query)
	} else if _, ok := models.ParseIntent(string(intent)); !ok {
		return nil, ErrInvalidIntent
	}

	embedding, err := s.queryEmbedding(ctx, query)
	if err != nil {
		s.logger.Error("retrieval: create query embedding failed", "error", err, "model", s.model, "intent", intent)

		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	return s.searchByVector(ctx, embedding, intent, topN)
}

// SearchByVector runs retrieval for a precomputed query vector.
func (s *RetrievalService) SearchByVector(
	ctx context.Context, queryEmbedding []float32, intent models.Intent, topN int,
) ([]models.TransactionWithScore, error) {
	if len(queryEmbedding) == 0 {
		return nil, lenserrors.NewValidationError("query_embedding", "query embedding must be non-empty")
	}

	if intent == "" {
		intent = models.IntentContent
	} else if _, ok := models.ParseIntent(string(intent)); !ok {
		return nil, ErrInvalidIntent
	}

	vec := make([]float32, len(queryEmbedding))
	copy(vec, queryEmbedding)

	return s.searchByVector(ctx, vec, intent, topN)
}

// SimilarTransactions returns the transactions nearest to an existing one,
// seeded by its stored content embedding. Returns ErrEmbeddingNotFound when
// the transaction has no content embedding for the current model.
func (s *RetrievalService) SimilarTransactions(
	ctx context.Context, transactionID uuid.UUID, topN int,
) ([]models.TransactionWithScore, error) {
	embedding, err := s.repo.GetEmbedding(ctx, transactionID, models.PurposeContent, s.model)
	if err != nil {
		if errors.Is(err, repository.ErrEmbeddingNotFound) {
			s.logger.Debug("retrieval: no content embedding for transaction",
				"transaction_id", transactionID.String(), "model", s.model)

			//nolint:wrapcheck // return as-is so handler can map to 404
			return nil, err
		}

		s.logger.Error("retrieval: get embedding failed", "error", err, "transaction_id", transactionID.String())

		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	results, err := s.repo.NearestByEmbedding(
		ctx, models.PurposeContent, s.model, embedding, s.clampTopN(topN), &transactionID)
	if err != nil {
		s.logger.Error("retrieval: nearest failed", "error", err, "transaction_id", transactionID.String())

		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	return results, nil
}

func (s *RetrievalService) searchByVector(
	ctx context.Context, embedding []float32, intent models.Intent, topN int,
) ([]models.TransactionWithScore, error) {
	embeddings.NormalizeL2(embedding)

	purpose := models.PurposeForIntent(intent)

	results, err := s.repo.NearestByEmbedding(ctx, purpose, s.model, embedding, s.clampTopN(topN), nil)
	if err != nil {
		s.logger.Error("retrieval: nearest failed", "error", err, "purpose", purpose, "model", s.model)

		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	orderResults(intent, results)

	return results, nil
}

func (s *RetrievalService) clampTopN(topN int) int {
	if topN <= 0 {
		return s.defaultTopN
	}

	return min(topN, maxTopN)
}

// orderResults applies the intent-specific post-ordering in place. Amount
// queries rank by amount descending, date queries by date descending, both
// with similarity then transaction ID as tie-breaks; every other intent keeps
// the ascending-distance order from the scan (already ID-tie-broken), so
// repeated calls on unchanged data are byte-identical.
func orderResults(intent models.Intent, results []models.TransactionWithScore) {
	switch intent {
	case models.IntentAmount:
		slices.SortStableFunc(results, func(a, b models.TransactionWithScore) int {
			if a.Transaction.Amount != b.Transaction.Amount {
				if a.Transaction.Amount > b.Transaction.Amount {
					return -1
				}

				return 1
			}

			return compareBySimilarityThenID(a, b)
		})
	case models.IntentDate:
		slices.SortStableFunc(results, func(a, b models.TransactionWithScore) int {
			if !a.Transaction.Date.Equal(b.Transaction.Date) {
				if a.Transaction.Date.After(b.Transaction.Date) {
					return -1
				}

				return 1
			}

			return compareBySimilarityThenID(a, b)
		})
	case models.IntentContent, models.IntentCategory, models.IntentCombined:
		// keep distance order
	}
}

func compareBySimilarityThenID(a, b models.TransactionWithScore) int {
	if a.Score != b.Score {
		if a.Score > b.Score {
			return -1
		}

		return 1
	}

	return bytes.Compare(a.Transaction.ID[:], b.Transaction.ID[:])
}

// queryEmbedding returns the embedding for the query text, via the LRU cache
// when configured. Singleflight collapses concurrent misses for the same text
// into one provider call. Callers always get their own copy: the cached slice
// is shared across requests and the search path normalizes in place.
func (s *RetrievalService) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if s.queryCache == nil {
		vec, err := s.embeddingClient.CreateEmbedding(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("create embedding: %w", err)
		}

		return slices.Clone(vec), nil
	}

	if vec, ok := s.queryCache.Get(query); ok {
		if s.cacheMetrics != nil {
			s.cacheMetrics.RecordHit(ctx, queryEmbeddingCacheName)
		}

		return slices.Clone(vec), nil
	}

	val, err, _ := s.queryLoadGroup.Do(query, func() (any, error) {
		// Only the goroutine that performs the load counts as a miss;
		// followers piggyback on its provider call.
		if s.cacheMetrics != nil {
			s.cacheMetrics.RecordMiss(ctx, queryEmbeddingCacheName)
		}

		vec, loadErr := s.embeddingClient.CreateEmbedding(ctx, query)
		if loadErr != nil {
			return nil, fmt.Errorf("create embedding: %w", loadErr)
		}

		s.queryCache.Add(query, slices.Clone(vec))

		return vec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	return slices.Clone(val.([]float32)), nil
}
