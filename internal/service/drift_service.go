package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerlens/ledgerlens/internal/lenserrors"
	"github.com/ledgerlens/ledgerlens/internal/models"
)

// TransactionsRepositoryForDrift provides the window queries the drift
// detector compares.
type TransactionsRepositoryForDrift interface {
	DistinctCounterparties(
		ctx context.Context, from, to time.Time, filter models.TransactionFilter,
	) (map[string]struct{}, error)
	ListByDateRange(
		ctx context.Context, from, to time.Time, filter models.TransactionFilter,
	) ([]models.Transaction, error)
}

// DriftService detects counterparty drift: transactions in the current window
// whose counterparty never appeared in the adjacent historical window.
type DriftService struct {
	repo   TransactionsRepositoryForDrift
	now    func() time.Time
	logger *slog.Logger
}

// NewDriftService creates a DriftService. nowFunc may be nil (time.Now).
func NewDriftService(repo TransactionsRepositoryForDrift, nowFunc func() time.Time, logger *slog.Logger) *DriftService {
	if nowFunc == nil {
		nowFunc = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &DriftService{repo: repo, now: nowFunc, logger: logger}
}

// NewCounterparties returns every current-window transaction whose
// counterparty is absent from the historical window. The current window is
// the last currentDays ending now; the historical window is the
// historicalDays immediately before it, half-open so the two never overlap.
// A zero-length historical window means every counterparty is unknown.
// Results are ordered by date then transaction ID.
func (s *DriftService) NewCounterparties(
	ctx context.Context, currentDays, historicalDays int, filter models.TransactionFilter,
) ([]models.DriftRow, error) {
	if currentDays <= 0 {
		return nil, lenserrors.NewValidationError("current_days", "current_days must be a positive number of days")
	}

	if historicalDays < 0 {
		return nil, lenserrors.NewValidationError("historical_days", "historical_days must not be negative")
	}

	now := s.now()
	currentStart := now.AddDate(0, 0, -currentDays)
	historicalStart := currentStart.AddDate(0, 0, -historicalDays)

	known := map[string]struct{}{}

	if historicalDays > 0 {
		var err error

		known, err = s.repo.DistinctCounterparties(ctx, historicalStart, currentStart, filter)
		if err != nil {
			s.logger.Error("drift: historical counterparty scan failed", "error", err)

			return nil, fmt.Errorf("%w: historical counterparties: %w", lenserrors.ErrStore, err)
		}
	}

	current, err := s.repo.ListByDateRange(ctx, currentStart, now, filter)
	if err != nil {
		s.logger.Error("drift: current window scan failed", "error", err)

		return nil, fmt.Errorf("%w: current window: %w", lenserrors.ErrStore, err)
	}

	// current is ordered by date then ID, so the first sighting per
	// counterparty is its earliest in-window date.
	firstSeenAt := make(map[string]time.Time)

	rows := make([]models.DriftRow, 0)

	for _, txn := range current {
		if _, ok := known[txn.CounterpartyAccount]; ok {
			continue
		}

		if _, seen := firstSeenAt[txn.CounterpartyAccount]; !seen {
			firstSeenAt[txn.CounterpartyAccount] = txn.Date
		}

		rows = append(rows, models.DriftRow{
			Transaction: txn,
			FirstSeen:   true,
			FirstSeenAt: firstSeenAt[txn.CounterpartyAccount],
		})
	}

	s.logger.Info("drift: analysis complete",
		"current_days", currentDays, "historical_days", historicalDays,
		"current_transactions", len(current), "new_counterparties", len(firstSeenAt))

	return rows, nil
}
