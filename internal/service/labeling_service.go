package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ledgerlens/ledgerlens/internal/lenserrors"
	"github.com/ledgerlens/ledgerlens/internal/models"
	"github.com/ledgerlens/ledgerlens/pkg/embeddings"
)

// TransactionsRepositoryForLabeling provides the write path for ingestion plus
// the neighbor scan the label cascade votes over.
type TransactionsRepositoryForLabeling interface {
	Create(
		ctx context.Context, txn *models.Transaction, model string,
		vectors map[models.EmbeddingPurpose][]float32,
	) error
	NearestByEmbedding(
		ctx context.Context, purpose models.EmbeddingPurpose, model string,
		queryEmbedding []float32, limit int, excludeID *uuid.UUID,
	) ([]models.TransactionWithScore, error)
}

// LabelingThresholds holds the label cascade tunables: the neighbor count and
// the three similarity cutoffs. PrimaryMin gates the majority vote,
// CandidateMin admits weaker neighbors as fallback candidates, FallbackMin is
// the floor a fallback candidate must still clear.
type LabelingThresholds struct {
	TopK         int
	PrimaryMin   float64
	CandidateMin float64
	FallbackMin  float64
}

// LabelingService ingests transactions: it embeds each one for every purpose,
// assigns a label by voting over the nearest already-labeled transactions, and
// stores the row and its vectors in one transaction. A failed embedding or
// store leaves nothing behind.
type LabelingService struct {
	embeddingClient EmbeddingClient
	repo            TransactionsRepositoryForLabeling
	model           string
	thresholds      LabelingThresholds
	logger          *slog.Logger
}

// NewLabelingService creates a LabelingService.
func NewLabelingService(
	embeddingClient EmbeddingClient,
	repo TransactionsRepositoryForLabeling,
	model string,
	thresholds LabelingThresholds,
	logger *slog.Logger,
) *LabelingService {
	if logger == nil {
		logger = slog.Default()
	}

	if thresholds.TopK <= 0 {
		thresholds.TopK = 5
	}

	return &LabelingService{
		embeddingClient: embeddingClient,
		repo:            repo,
		model:           model,
		thresholds:      thresholds,
		logger:          logger,
	}
}

// Ingest validates the transaction, embeds it, runs the label cascade, and
// persists the row with its vectors atomically. The stored transaction
// (ID and label filled in) is returned.
func (s *LabelingService) Ingest(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if err := validateTransaction(txn); err != nil {
		return nil, err
	}

	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}

	texts := PurposeTextsOrdered(txn)

	rawVectors, err := s.embeddingClient.CreateEmbeddings(ctx, texts)
	if err != nil {
		s.logger.Error("labeling: embed transaction failed",
			"error", err, "transaction_id", txn.ID.String(), "model", s.model)

		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	if len(rawVectors) != len(models.AllPurposes) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs",
			ErrEmbeddingUnavailable, len(rawVectors), len(models.AllPurposes))
	}

	vectors := make(map[models.EmbeddingPurpose][]float32, len(models.AllPurposes))

	for i, purpose := range models.AllPurposes {
		embeddings.NormalizeL2(rawVectors[i])
		vectors[purpose] = rawVectors[i]
	}

	neighbors, err := s.repo.NearestByEmbedding(
		ctx, models.PurposeContent, s.model, vectors[models.PurposeContent], s.thresholds.TopK, nil)
	if err != nil {
		s.logger.Error("labeling: neighbor scan failed", "error", err, "transaction_id", txn.ID.String())

		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	txn.Label = s.AssignLabel(neighbors)

	if err := s.repo.Create(ctx, txn, s.model, vectors); err != nil {
		s.logger.Error("labeling: store transaction failed", "error", err, "transaction_id", txn.ID.String())

		return nil, fmt.Errorf("%w: store transaction: %w", lenserrors.ErrStore, err)
	}

	s.logger.Info("labeling: transaction ingested",
		"transaction_id", txn.ID.String(), "label", txn.Label, "neighbors", len(neighbors))

	return txn, nil
}

// AssignLabel runs the label cascade over content-similarity neighbors,
// ordered by descending score:
//
//  1. no neighbors: Uncategorized
//  2. top similarity >= PrimaryMin: majority vote among neighbors at or above
//     PrimaryMin; a tied vote goes to the label whose best neighbor is most
//     similar, then to the lexicographically smaller label
//  3. otherwise the single best neighbor at or above CandidateMin contributes
//     its label, but only when its similarity also clears FallbackMin
//  4. otherwise: Uncategorized
func (s *LabelingService) AssignLabel(neighbors []models.TransactionWithScore) string {
	if len(neighbors) == 0 {
		return models.LabelUncategorized
	}

	best := neighbors[0]
	for _, n := range neighbors[1:] {
		if n.Score > best.Score {
			best = n
		}
	}

	if best.Score >= s.thresholds.PrimaryMin {
		return majorityLabel(neighbors, s.thresholds.PrimaryMin)
	}

	if best.Score >= s.thresholds.CandidateMin && best.Score >= s.thresholds.FallbackMin {
		return best.Transaction.Label
	}

	return models.LabelUncategorized
}

// majorityLabel votes among neighbors with score >= minScore.
func majorityLabel(neighbors []models.TransactionWithScore, minScore float64) string {
	votes := make(map[string]int)
	bestScore := make(map[string]float64)

	for _, n := range neighbors {
		if n.Score < minScore {
			continue
		}

		label := n.Transaction.Label
		votes[label]++

		if n.Score > bestScore[label] {
			bestScore[label] = n.Score
		}
	}

	winner := ""

	for label, count := range votes {
		if winner == "" {
			winner = label

			continue
		}

		switch {
		case count > votes[winner]:
			winner = label
		case count == votes[winner] && bestScore[label] > bestScore[winner]:
			winner = label
		case count == votes[winner] && bestScore[label] == bestScore[winner] && label < winner:
			winner = label
		}
	}

	if winner == "" {
		return models.LabelUncategorized
	}

	return winner
}

func validateTransaction(txn *models.Transaction) error {
	if txn == nil {
		return lenserrors.NewValidationError("transaction", "transaction is required")
	}

	if txn.Description == "" {
		return lenserrors.NewValidationError("description", "description is required")
	}

	if txn.Amount < 0 {
		return lenserrors.NewValidationError("amount", "amount must be non-negative (direction is carried by type)")
	}

	if txn.Type != models.TransactionTypeDebit && txn.Type != models.TransactionTypeCredit {
		return lenserrors.NewValidationError("type", "type must be debit or credit")
	}

	if txn.Date.IsZero() {
		return lenserrors.NewValidationError("date", "date is required")
	}

	if txn.CounterpartyAccount == "" {
		return lenserrors.NewValidationError("counterparty_account", "counterparty_account is required")
	}

	return nil
}
