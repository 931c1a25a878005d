// backfill-embeddings enqueues River regeneration jobs for transactions whose
// embedding rows are missing or stale for the configured model. Run this when
// the API server is not handling backfill (e.g. one-off after a model change).
// Workers in the API process the jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/ledgerlens/ledgerlens/internal/jobs"
	"github.com/ledgerlens/ledgerlens/internal/repository"
	"github.com/ledgerlens/ledgerlens/pkg/database"
)

const (
	defaultEmbeddingModel = "text-embedding-3-small"
	exitSuccess           = 0
	exitFailure           = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env for consistency with the main API server (godotenv.Load() there).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")

		return exitFailure
	}

	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultEmbeddingModel
	}

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, databaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	// Insert-only client: no queues or workers here, the API server runs them.
	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)

		return exitFailure
	}

	repo := repository.NewTransactionsRepository(db)
	inserter := jobs.NewRiverJobInserter(riverClient)

	stats, err := jobs.Backfill(ctx, repo, inserter, model, nil)
	if err != nil {
		slog.Error("Backfill failed", "error", err)

		return exitFailure
	}

	slog.Info("Backfill complete", "enqueued", stats.TransactionsEnqueued, "errors", stats.Errors)

	fmt.Printf("Enqueued %d embedding job(s), %d error(s).\n", stats.TransactionsEnqueued, stats.Errors)

	return exitSuccess
}
