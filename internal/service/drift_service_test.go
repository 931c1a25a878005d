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

type mockDriftRepo struct {
	distinctFunc func(
		ctx context.Context, from, to time.Time, filter models.TransactionFilter,
	) (map[string]struct{}, error)
	listFunc func(
		ctx context.Context, from, to time.Time, filter models.TransactionFilter,
	) ([]models.Transaction, error)
}

func (m *mockDriftRepo) DistinctCounterparties(
	ctx context.Context, from, to time.Time, filter models.TransactionFilter,
) (map[string]struct{}, error) {
	return m.distinctFunc(ctx, from, to, filter)
}

func (m *mockDriftRepo) ListByDateRange(
	ctx context.Context, from, to time.Time, filter models.TransactionFilter,
) ([]models.Transaction, error) {
	return m.listFunc(ctx, from, to, filter)
}

func txnFor(counterparty string, date time.Time) models.Transaction {
	return models.Transaction{
		ID:                  uuid.New(),
		Description:         "payment",
		Amount:              1000,
		Type:                models.TransactionTypeDebit,
		Date:                date,
		CounterpartyAccount: counterparty,
	}
}

func TestNewCounterpartiesValidation(t *testing.T) {
	svc := NewDriftService(&mockDriftRepo{}, nil, nil)

	_, err := svc.NewCounterparties(context.Background(), 0, 30, models.TransactionFilter{})
	require.Error(t, err)

	_, err = svc.NewCounterparties(context.Background(), -7, 30, models.TransactionFilter{})
	require.Error(t, err)

	_, err = svc.NewCounterparties(context.Background(), 7, -1, models.TransactionFilter{})
	require.Error(t, err)
}

func TestNewCounterpartiesWindowsAreAdjacentAndHalfOpen(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	var histFrom, histTo, curFrom, curTo time.Time

	repo := &mockDriftRepo{
		distinctFunc: func(_ context.Context, from, to time.Time, _ models.TransactionFilter) (map[string]struct{}, error) {
			histFrom, histTo = from, to

			return map[string]struct{}{}, nil
		},
		listFunc: func(_ context.Context, from, to time.Time, _ models.TransactionFilter) ([]models.Transaction, error) {
			curFrom, curTo = from, to

			return nil, nil
		},
	}

	svc := NewDriftService(repo, func() time.Time { return now }, nil)

	_, err := svc.NewCounterparties(context.Background(), 7, 30, models.TransactionFilter{})
	require.NoError(t, err)

	assert.Equal(t, now, curTo)
	assert.Equal(t, now.AddDate(0, 0, -7), curFrom)
	// historical window ends exactly where the current one begins
	assert.Equal(t, curFrom, histTo)
	assert.Equal(t, curFrom.AddDate(0, 0, -30), histFrom)
}

func TestNewCounterpartiesSetDifference(t *testing.T) {
	now := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	repo := &mockDriftRepo{
		distinctFunc: func(_ context.Context, _, _ time.Time, _ models.TransactionFilter) (map[string]struct{}, error) {
			return map[string]struct{}{"acct-a": {}, "acct-b": {}}, nil
		},
		listFunc: func(_ context.Context, _, _ time.Time, _ models.TransactionFilter) ([]models.Transaction, error) {
			return []models.Transaction{
				txnFor("acct-a", now.AddDate(0, 0, -3)),
				txnFor("acct-c", now.AddDate(0, 0, -5)),
				txnFor("acct-c", now.AddDate(0, 0, -2)),
			}, nil
		},
	}

	svc := NewDriftService(repo, func() time.Time { return now }, nil)

	rows, err := svc.NewCounterparties(context.Background(), 7, 30, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for _, row := range rows {
		assert.Equal(t, "acct-c", row.Transaction.CounterpartyAccount)
		assert.True(t, row.FirstSeen)
		// first sighting in the current window, shared by both rows
		assert.Equal(t, now.AddDate(0, 0, -5), row.FirstSeenAt)
	}
}

func TestNewCounterpartiesEmptyHistoricalWindow(t *testing.T) {
	now := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	distinctCalled := false
	repo := &mockDriftRepo{
		distinctFunc: func(_ context.Context, _, _ time.Time, _ models.TransactionFilter) (map[string]struct{}, error) {
			distinctCalled = true

			return nil, nil
		},
		listFunc: func(_ context.Context, _, _ time.Time, _ models.TransactionFilter) ([]models.Transaction, error) {
			return []models.Transaction{
				txnFor("acct-a", now.AddDate(0, 0, -1)),
				txnFor("acct-b", now.AddDate(0, 0, -1)),
			}, nil
		},
	}

	svc := NewDriftService(repo, func() time.Time { return now }, nil)

	rows, err := svc.NewCounterparties(context.Background(), 7, 0, models.TransactionFilter{})
	require.NoError(t, err)

	// zero-length history: everything is new
	assert.Len(t, rows, 2)
	assert.False(t, distinctCalled)
}

func TestNewCounterpartiesStoreFailure(t *testing.T) {
	repo := &mockDriftRepo{
		distinctFunc: func(_ context.Context, _, _ time.Time, _ models.TransactionFilter) (map[string]struct{}, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewDriftService(repo, nil, nil)

	_, err := svc.NewCounterparties(context.Background(), 7, 30, models.TransactionFilter{})
	require.Error(t, err)
}
