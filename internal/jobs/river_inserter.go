package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// RiverJobInserter implements JobInserter using the River client.
type RiverJobInserter struct {
	client *river.Client[pgx.Tx]
}

// NewRiverJobInserter creates a new River-based job inserter.
func NewRiverJobInserter(client *river.Client[pgx.Tx]) *RiverJobInserter {
	return &RiverJobInserter{client: client}
}

// InsertTransactionEmbeddingJob enqueues an embedding regeneration job with
// uniqueness constraints: concurrent updates to the same transaction collapse
// into one pending job instead of racing workers.
func (r *RiverJobInserter) InsertTransactionEmbeddingJob(ctx context.Context, args TransactionEmbeddingArgs) error {
	_, err := r.client.Insert(ctx, args, &river.InsertOpts{
		Queue: QueueTransactionEmbedding,
		UniqueOpts: river.UniqueOpts{
			// Only one pending job per transaction and model (by args)
			ByArgs: true,
			// Note: JobStatePending is required by River when using ByState
			ByState: []rivertype.JobState{
				rivertype.JobStatePending,
				rivertype.JobStateAvailable,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
				rivertype.JobStateScheduled,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("insert embedding job: %w", err)
	}

	return nil
}
