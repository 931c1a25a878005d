package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ledgerlens/ledgerlens/internal/lenserrors"
	"github.com/ledgerlens/ledgerlens/internal/models"
)

// TransactionsRepositoryForAnomaly provides the window scan and the
// per-counterparty baseline aggregation.
type TransactionsRepositoryForAnomaly interface {
	ListByDateRange(
		ctx context.Context, from, to time.Time, filter models.TransactionFilter,
	) ([]models.Transaction, error)
	CounterpartyProfiles(
		ctx context.Context, from, to time.Time, filter models.TransactionFilter,
	) (map[string]models.CounterpartyProfile, error)
}

// AnomalyService flags current-window transactions whose amount deviates from
// the counterparty's historical baseline by more than a configured multiple.
type AnomalyService struct {
	repo       TransactionsRepositoryForAnomaly
	multiplier float64
	now        func() time.Time
	logger     *slog.Logger
}

// NewAnomalyService creates an AnomalyService. nowFunc may be nil (time.Now).
func NewAnomalyService(
	repo TransactionsRepositoryForAnomaly, multiplier float64, nowFunc func() time.Time, logger *slog.Logger,
) *AnomalyService {
	if multiplier <= 0 {
		multiplier = 2.0
	}

	if nowFunc == nil {
		nowFunc = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &AnomalyService{repo: repo, multiplier: multiplier, now: nowFunc, logger: logger}
}

// AmountAnomalies judges every transaction in the current window against its
// counterparty's baseline from the lookback window immediately before it.
// Every current-window transaction gets a row; counterparties with no
// baseline samples are reported as insufficient_data, never dropped.
// multiplier overrides the configured threshold for this call; pass 0 to use
// the configured default.
func (s *AnomalyService) AmountAnomalies(
	ctx context.Context, currentDays, lookbackDays int, multiplier float64, filter models.TransactionFilter,
) ([]models.AnomalyRow, error) {
	if currentDays <= 0 {
		return nil, lenserrors.NewValidationError("current_days", "current_days must be a positive number of days")
	}

	if lookbackDays <= 0 {
		return nil, lenserrors.NewValidationError("lookback_days", "lookback_days must be a positive number of days")
	}

	if multiplier < 0 {
		return nil, lenserrors.NewValidationError("multiplier", "multiplier must be positive")
	}

	if multiplier == 0 {
		multiplier = s.multiplier
	}

	now := s.now()
	currentStart := now.AddDate(0, 0, -currentDays)
	lookbackStart := currentStart.AddDate(0, 0, -lookbackDays)

	profiles, err := s.repo.CounterpartyProfiles(ctx, lookbackStart, currentStart, filter)
	if err != nil {
		s.logger.Error("anomaly: baseline aggregation failed", "error", err)

		return nil, fmt.Errorf("%w: counterparty baselines: %w", lenserrors.ErrStore, err)
	}

	current, err := s.repo.ListByDateRange(ctx, currentStart, now, filter)
	if err != nil {
		s.logger.Error("anomaly: current window scan failed", "error", err)

		return nil, fmt.Errorf("%w: current window: %w", lenserrors.ErrStore, err)
	}

	rows := make([]models.AnomalyRow, 0, len(current))
	flagged := 0

	for _, txn := range current {
		row := judge(txn, profiles[txn.CounterpartyAccount], multiplier)
		if row.Flagged {
			flagged++
		}

		rows = append(rows, row)
	}

	s.logger.Info("anomaly: analysis complete",
		"current_days", currentDays, "lookback_days", lookbackDays,
		"current_transactions", len(current), "flagged", flagged)

	return rows, nil
}

// judge applies the detection rule to one transaction:
//
//   - baseline with at least two samples and positive spread: flag when
//     |amount - mean| > multiplier * stddev; ratio is |amount - mean| / stddev
//   - degenerate baseline (single sample or zero spread): flag when
//     amount > multiplier * mean; ratio is amount / mean; a zero mean flags
//     every positive amount with ratio 0
//   - no baseline samples: insufficient_data, never flagged
//
// Severity is high when the ratio reaches twice the multiplier, moderate
// otherwise.
func judge(txn models.Transaction, profile models.CounterpartyProfile, multiplier float64) models.AnomalyRow {
	row := models.AnomalyRow{Transaction: txn, Profile: profile}

	if profile.SampleCount == 0 {
		row.Baseline = models.BaselineInsufficient

		return row
	}

	amount := float64(txn.Amount)

	if profile.SampleCount > 1 && profile.StdDev > 0 {
		row.Baseline = models.BaselineStdDev

		deviation := math.Abs(amount - profile.Mean)
		row.Ratio = deviation / profile.StdDev
		row.Flagged = deviation > multiplier*profile.StdDev
	} else {
		row.Baseline = models.BaselineFallback

		switch {
		case profile.Mean > 0:
			row.Ratio = amount / profile.Mean
			row.Flagged = amount > multiplier*profile.Mean
		default:
			row.Flagged = amount > 0
		}
	}

	if row.Flagged {
		row.Severity = models.SeverityModerate
		// a zero-mean baseline gives no usable ratio; any spend there is high
		if row.Ratio >= 2*multiplier || (row.Baseline == models.BaselineFallback && profile.Mean <= 0) {
			row.Severity = models.SeverityHigh
		}
	}

	return row
}
