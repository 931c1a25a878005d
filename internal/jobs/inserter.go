package jobs

import (
	"context"
)

// JobInserter is an interface for inserting jobs into the queue.
// This allows services and CLIs to enqueue jobs without knowing about River directly.
type JobInserter interface {
	// InsertTransactionEmbeddingJob enqueues an embedding regeneration job.
	// Returns an error if the job could not be inserted.
	InsertTransactionEmbeddingJob(ctx context.Context, args TransactionEmbeddingArgs) error
}
