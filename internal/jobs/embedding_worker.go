package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"golang.org/x/time/rate"

	"github.com/ledgerlens/ledgerlens/internal/models"
	"github.com/ledgerlens/ledgerlens/internal/observability"
	"github.com/ledgerlens/ledgerlens/internal/repository"
	"github.com/ledgerlens/ledgerlens/internal/service"
	"github.com/ledgerlens/ledgerlens/pkg/embeddings"
)

// EmbeddingStore is the repository surface the worker needs: load the
// transaction and overwrite its vectors.
type EmbeddingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ReplaceEmbeddings(
		ctx context.Context, transactionID uuid.UUID, model string,
		vectors map[models.EmbeddingPurpose][]float32,
	) error
}

// EmbeddingWorkerDeps holds the dependencies for the embedding worker.
// RateLimiter and Metrics may be nil.
type EmbeddingWorkerDeps struct {
	EmbeddingClient service.EmbeddingClient
	Store           EmbeddingStore
	RateLimiter     *rate.Limiter
	Metrics         observability.EmbeddingMetrics
}

// TransactionEmbeddingWorker regenerates every purpose vector for one
// transaction. Failures are isolated per job: River retries the failed
// transaction, the rest of the queue keeps flowing.
type TransactionEmbeddingWorker struct {
	river.WorkerDefaults[TransactionEmbeddingArgs]
	deps EmbeddingWorkerDeps
}

// NewTransactionEmbeddingWorker creates a new embedding worker with the given dependencies.
func NewTransactionEmbeddingWorker(deps EmbeddingWorkerDeps) *TransactionEmbeddingWorker {
	return &TransactionEmbeddingWorker{deps: deps}
}

// Timeout bounds one regeneration attempt, provider call included.
func (w *TransactionEmbeddingWorker) Timeout(*river.Job[TransactionEmbeddingArgs]) time.Duration {
	return 2 * time.Minute
}

// Work processes an embedding regeneration job.
func (w *TransactionEmbeddingWorker) Work(ctx context.Context, job *river.Job[TransactionEmbeddingArgs]) error {
	args := job.Args
	start := time.Now()

	slog.Debug("processing embedding job",
		"job_id", job.ID,
		"transaction_id", args.TransactionID,
		"model", args.Model,
	)

	txn, err := w.deps.Store.GetByID(ctx, args.TransactionID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			slog.Info("transaction deleted before embedding job completed",
				"job_id", job.ID,
				"transaction_id", args.TransactionID,
			)
			// Return nil to mark job as complete - the row no longer exists
			return nil
		}

		w.recordOutcome(ctx, job, start, "retry")
		slog.Error("failed to load transaction for embedding job",
			"job_id", job.ID,
			"transaction_id", args.TransactionID,
			"error", err,
		)

		return fmt.Errorf("load transaction: %w", err)
	}

	// Wait for rate limit token if configured
	if w.deps.RateLimiter != nil {
		if err := w.deps.RateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	texts := service.PurposeTextsOrdered(txn)

	rawVectors, err := w.deps.EmbeddingClient.CreateEmbeddings(ctx, texts)
	if err != nil {
		if w.deps.Metrics != nil {
			w.deps.Metrics.RecordProviderError(ctx, "unavailable")
		}

		w.recordOutcome(ctx, job, start, "retry")
		slog.Error("failed to generate embeddings",
			"job_id", job.ID,
			"transaction_id", args.TransactionID,
			"error", err,
		)

		return fmt.Errorf("create embeddings: %w", err) // River will retry based on configuration
	}

	if len(rawVectors) != len(models.AllPurposes) {
		w.recordOutcome(ctx, job, start, "failed")

		return fmt.Errorf("got %d vectors for %d inputs", len(rawVectors), len(models.AllPurposes))
	}

	vectors := make(map[models.EmbeddingPurpose][]float32, len(models.AllPurposes))

	for i, purpose := range models.AllPurposes {
		embeddings.NormalizeL2(rawVectors[i])
		vectors[purpose] = rawVectors[i]
	}

	if err := w.deps.Store.ReplaceEmbeddings(ctx, args.TransactionID, args.Model, vectors); err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			slog.Info("transaction deleted before embedding job completed",
				"job_id", job.ID,
				"transaction_id", args.TransactionID,
			)

			return nil
		}

		w.recordOutcome(ctx, job, start, "retry")
		slog.Error("failed to store embeddings",
			"job_id", job.ID,
			"transaction_id", args.TransactionID,
			"error", err,
		)

		return fmt.Errorf("replace embeddings: %w", err) // Retry on store errors
	}

	w.recordOutcome(ctx, job, start, "success")
	slog.Info("embeddings regenerated",
		"job_id", job.ID,
		"transaction_id", args.TransactionID,
		"purposes", len(vectors),
	)

	return nil
}

func (w *TransactionEmbeddingWorker) recordOutcome(
	ctx context.Context, job *river.Job[TransactionEmbeddingArgs], start time.Time, status string,
) {
	if w.deps.Metrics == nil {
		return
	}

	if status == "retry" && job.Attempt >= job.MaxAttempts {
		status = "failed"
	}

	w.deps.Metrics.RecordEmbeddingOutcome(ctx, status)
	w.deps.Metrics.RecordEmbeddingDuration(ctx, time.Since(start), status)
}
