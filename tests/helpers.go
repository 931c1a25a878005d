// Package tests provides integration test helpers and utilities.
package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/ledgerlens/internal/config"
	"github.com/ledgerlens/ledgerlens/pkg/database"
)

const testAPIKey = "test-api-key-12345"

// CleanupTestData removes transactions seeded by these tests. Embedding rows
// go with them via ON DELETE CASCADE.
func CleanupTestData(t *testing.T) {
	t.Helper()

	ctx := context.Background()

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	require.NoError(t, err)

	defer db.Close()

	_, err = db.Exec(ctx, "DELETE FROM transactions WHERE description LIKE 'e2e %'")
	require.NoError(t, err)
}
