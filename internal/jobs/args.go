// Package jobs provides River job workers for embedding regeneration.
package jobs

import "github.com/google/uuid"

// QueueTransactionEmbedding is the River queue for embedding regeneration.
// Its MaxWorkers bound is the in-flight embedding job limit.
const QueueTransactionEmbedding = "transaction_embedding"

// TransactionEmbeddingArgs contains the arguments for a transaction embedding
// regeneration job. The worker rebuilds every purpose vector for the
// transaction, so one job per transaction is enough regardless of which field
// changed.
type TransactionEmbeddingArgs struct {
	// TransactionID is the UUID of the transaction to re-embed.
	TransactionID uuid.UUID `json:"transaction_id"`

	// Model is the embedding model the vectors are generated with.
	Model string `json:"model"`
}

// Kind returns the job type identifier for River.
func (TransactionEmbeddingArgs) Kind() string { return "transaction_embedding" }
