package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ledgerlens/ledgerlens/internal/observability"
)

// BackfillLister finds transactions whose embedding rows are missing or stale
// for the given model.
type BackfillLister interface {
	ListIDsForEmbeddingBackfill(ctx context.Context, model string) ([]uuid.UUID, error)
}

// BackfillStats holds statistics from a backfill operation.
type BackfillStats struct {
	TransactionsEnqueued int
	Errors               int
}

// Backfill enqueues regeneration jobs for every transaction with missing or
// stale embeddings. Enqueue failures are counted and skipped so one bad row
// does not abort the sweep.
func Backfill(
	ctx context.Context, lister BackfillLister, inserter JobInserter, model string,
	metrics observability.EmbeddingMetrics,
) (*BackfillStats, error) {
	stats := &BackfillStats{}

	ids, err := lister.ListIDsForEmbeddingBackfill(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("list transactions for backfill: %w", err)
	}

	for _, id := range ids {
		if err := inserter.InsertTransactionEmbeddingJob(ctx, TransactionEmbeddingArgs{
			TransactionID: id,
			Model:         model,
		}); err != nil {
			slog.Error("failed to enqueue embedding job", "transaction_id", id, "error", err)

			if metrics != nil {
				metrics.RecordProviderError(ctx, "enqueue_failed")
			}

			stats.Errors++

			continue
		}

		stats.TransactionsEnqueued++
	}

	if metrics != nil {
		metrics.RecordJobsEnqueued(ctx, int64(stats.TransactionsEnqueued))
	}

	return stats, nil
}
