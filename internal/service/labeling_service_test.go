package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/ledgerlens/internal/models"
)

type mockLabelingRepo struct {
	createFunc func(
		ctx context.Context, txn *models.Transaction, model string,
		vectors map[models.EmbeddingPurpose][]float32,
	) error
	nearestFunc func(
		ctx context.Context, purpose models.EmbeddingPurpose, model string,
		queryEmbedding []float32, limit int, excludeID *uuid.UUID,
	) ([]models.TransactionWithScore, error)
}

func (m *mockLabelingRepo) Create(
	ctx context.Context, txn *models.Transaction, model string,
	vectors map[models.EmbeddingPurpose][]float32,
) error {
	return m.createFunc(ctx, txn, model, vectors)
}

func (m *mockLabelingRepo) NearestByEmbedding(
	ctx context.Context, purpose models.EmbeddingPurpose, model string,
	queryEmbedding []float32, limit int, excludeID *uuid.UUID,
) ([]models.TransactionWithScore, error) {
	return m.nearestFunc(ctx, purpose, model, queryEmbedding, limit, excludeID)
}

func defaultThresholds() LabelingThresholds {
	return LabelingThresholds{TopK: 5, PrimaryMin: 0.35, CandidateMin: 0.25, FallbackMin: 0.30}
}

func labeled(label string, score float64) models.TransactionWithScore {
	return models.TransactionWithScore{
		Transaction: models.Transaction{ID: uuid.New(), Label: label},
		Score:       score,
	}
}

func validTransaction() *models.Transaction {
	return &models.Transaction{
		Description:         "POS purchase ALBERT HEIJN 1333",
		Amount:              1250,
		Type:                models.TransactionTypeDebit,
		Date:                time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		CounterpartyAccount: "NL91ABNA0417164300",
		CounterpartyName:    "Albert Heijn",
	}
}

func TestAssignLabel(t *testing.T) {
	svc := NewLabelingService(nil, nil, "m", defaultThresholds(), nil)

	tests := []struct {
		name      string
		neighbors []models.TransactionWithScore
		want      string
	}{
		{
			name:      "no neighbors",
			neighbors: nil,
			want:      models.LabelUncategorized,
		},
		{
			name: "majority vote above primary threshold",
			neighbors: []models.TransactionWithScore{
				labeled("Groceries", 0.9),
				labeled("Groceries", 0.9),
				labeled("Dining", 0.2),
			},
			want: "Groceries",
		},
		{
			name: "below-primary neighbors do not vote",
			neighbors: []models.TransactionWithScore{
				labeled("Groceries", 0.4),
				labeled("Dining", 0.34),
				labeled("Dining", 0.34),
			},
			want: "Groceries",
		},
		{
			name: "vote tie goes to the most similar label",
			neighbors: []models.TransactionWithScore{
				labeled("Dining", 0.8),
				labeled("Groceries", 0.7),
			},
			want: "Dining",
		},
		{
			name: "fallback candidate above floor",
			neighbors: []models.TransactionWithScore{
				labeled("Utilities", 0.32),
			},
			want: "Utilities",
		},
		{
			name: "candidate below fallback floor",
			neighbors: []models.TransactionWithScore{
				labeled("Utilities", 0.26),
			},
			want: models.LabelUncategorized,
		},
		{
			name: "everything below candidate threshold",
			neighbors: []models.TransactionWithScore{
				labeled("Utilities", 0.1),
				labeled("Dining", 0.05),
			},
			want: models.LabelUncategorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.AssignLabel(tt.neighbors))
		})
	}
}

func TestAssignLabelIsDeterministic(t *testing.T) {
	svc := NewLabelingService(nil, nil, "m", defaultThresholds(), nil)

	// full tie: same count, same best similarity; lexicographic order decides
	neighbors := []models.TransactionWithScore{
		labeled("Dining", 0.8),
		labeled("Groceries", 0.8),
	}

	first := svc.AssignLabel(neighbors)
	assert.Equal(t, "Dining", first)

	for range 10 {
		assert.Equal(t, first, svc.AssignLabel(neighbors))
	}
}

func TestIngestValidation(t *testing.T) {
	svc := NewLabelingService(&mockEmbeddingClient{}, &mockLabelingRepo{}, "m", defaultThresholds(), nil)

	tests := []struct {
		name   string
		mutate func(txn *models.Transaction)
	}{
		{name: "missing description", mutate: func(txn *models.Transaction) { txn.Description = "" }},
		{name: "negative amount", mutate: func(txn *models.Transaction) { txn.Amount = -1 }},
		{name: "unknown type", mutate: func(txn *models.Transaction) { txn.Type = "transfer" }},
		{name: "zero date", mutate: func(txn *models.Transaction) { txn.Date = time.Time{} }},
		{name: "missing counterparty", mutate: func(txn *models.Transaction) { txn.CounterpartyAccount = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := validTransaction()
			tt.mutate(txn)

			_, err := svc.Ingest(context.Background(), txn)
			require.Error(t, err)
		})
	}
}

func TestIngestEmbedsAllPurposesAndStoresAtomically(t *testing.T) {
	client := &mockEmbeddingClient{
		createEmbeddingsFunc: func(_ context.Context, inputs []string) ([][]float32, error) {
			require.Len(t, inputs, len(models.AllPurposes))

			vectors := make([][]float32, len(inputs))
			for i := range inputs {
				vectors[i] = []float32{1, 0}
			}

			return vectors, nil
		},
	}

	var storedVectors map[models.EmbeddingPurpose][]float32

	var storedLabel string

	repo := &mockLabelingRepo{
		nearestFunc: func(
			_ context.Context, purpose models.EmbeddingPurpose, _ string, _ []float32, limit int, _ *uuid.UUID,
		) ([]models.TransactionWithScore, error) {
			assert.Equal(t, models.PurposeContent, purpose)
			assert.Equal(t, 5, limit)

			return []models.TransactionWithScore{labeled("Groceries", 0.9)}, nil
		},
		createFunc: func(
			_ context.Context, txn *models.Transaction, _ string,
			vectors map[models.EmbeddingPurpose][]float32,
		) error {
			storedVectors = vectors
			storedLabel = txn.Label

			return nil
		},
	}

	svc := NewLabelingService(client, repo, "m", defaultThresholds(), nil)

	stored, err := svc.Ingest(context.Background(), validTransaction())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, stored.ID)
	assert.Equal(t, "Groceries", stored.Label)
	assert.Equal(t, "Groceries", storedLabel)
	require.Len(t, storedVectors, len(models.AllPurposes))

	for _, purpose := range models.AllPurposes {
		assert.Contains(t, storedVectors, purpose)
	}
}

func TestIngestEmbeddingFailureStoresNothing(t *testing.T) {
	client := &mockEmbeddingClient{
		createEmbeddingsFunc: func(_ context.Context, _ []string) ([][]float32, error) {
			return nil, errors.New("429 too many requests")
		},
	}

	created := false
	repo := &mockLabelingRepo{
		createFunc: func(
			_ context.Context, _ *models.Transaction, _ string, _ map[models.EmbeddingPurpose][]float32,
		) error {
			created = true

			return nil
		},
	}

	svc := NewLabelingService(client, repo, "m", defaultThresholds(), nil)

	_, err := svc.Ingest(context.Background(), validTransaction())
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.False(t, created, "a failed embedding must not leave a transaction behind")
}

func TestPurposeTextsAreDeterministic(t *testing.T) {
	txn := validTransaction()

	first := PurposeTextsOrdered(txn)
	require.Len(t, first, len(models.AllPurposes))

	for _, text := range first {
		assert.NotEmpty(t, text)
	}

	assert.Equal(t, first, PurposeTextsOrdered(txn))
}
