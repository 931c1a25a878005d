package repository

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/ledgerlens/internal/models"
	"github.com/ledgerlens/ledgerlens/pkg/database"
)

const testModel = "text-embedding-3-small"

func TestAppendFilter(t *testing.T) {
	base := `SELECT id FROM transactions WHERE date >= $1 AND date < $2`

	t.Run("empty filter adds nothing", func(t *testing.T) {
		query, args := appendFilter(base, []any{1, 2}, models.TransactionFilter{})

		assert.Equal(t, base, query)
		assert.Len(t, args, 2)
	})

	t.Run("counterparty and type", func(t *testing.T) {
		query, args := appendFilter(base, []any{1, 2}, models.TransactionFilter{
			Counterparty: "acct-a",
			Type:         models.TransactionTypeDebit,
		})

		assert.Contains(t, query, "counterparty_account = $3")
		assert.Contains(t, query, "type = $4")
		assert.Len(t, args, 4)
	})

	t.Run("amount bounds", func(t *testing.T) {
		minAmount := int64(100)
		maxAmount := int64(5000)

		query, args := appendFilter(base, []any{1, 2}, models.TransactionFilter{
			MinAmount: &minAmount,
			MaxAmount: &maxAmount,
		})

		assert.Contains(t, query, "amount >= $3")
		assert.Contains(t, query, "amount <= $4")
		assert.Equal(t, []any{1, 2, minAmount, maxAmount}, args)
	})
}

// setupTestDB connects to TEST_DATABASE_URL (a pgvector-enabled Postgres),
// applies the schema, and truncates between tests. Skips when unset.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping repository integration tests")
	}

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, url)
	require.NoError(t, err)

	t.Cleanup(db.Close)

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	require.NoError(t, err)

	_, err = db.Exec(ctx, string(schema))
	require.NoError(t, err)

	_, err = db.Exec(ctx, `TRUNCATE transaction_embeddings, transactions`)
	require.NoError(t, err)

	return db
}

// testVector returns a 1536-dim unit vector pointing along the given axis.
func testVector(axis int) []float32 {
	vec := make([]float32, 1536)
	vec[axis] = 1

	return vec
}

// blendVector returns a normalized 1536-dim vector mixing two axes.
func blendVector(axis, other int, weight float64) []float32 {
	vec := make([]float32, 1536)
	vec[axis] = float32(weight)
	vec[other] = float32(math.Sqrt(1 - weight*weight))

	return vec
}

func allPurposeVectors(axis int) map[models.EmbeddingPurpose][]float32 {
	vectors := make(map[models.EmbeddingPurpose][]float32, len(models.AllPurposes))
	for _, purpose := range models.AllPurposes {
		vectors[purpose] = testVector(axis)
	}

	return vectors
}

func insertTransaction(
	t *testing.T, repo *TransactionsRepository, axis int, counterparty string, amount int64, date time.Time,
) *models.Transaction {
	t.Helper()

	txn := &models.Transaction{
		ID:                  uuid.New(),
		Description:         fmt.Sprintf("payment to %s", counterparty),
		Amount:              amount,
		Type:                models.TransactionTypeDebit,
		Date:                date,
		CounterpartyAccount: counterparty,
		Label:               models.LabelUncategorized,
	}

	require.NoError(t, repo.Create(context.Background(), txn, testModel, allPurposeVectors(axis)))

	return txn
}

func TestTransactionsRepositoryRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionsRepository(db)
	ctx := context.Background()

	date := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	txn := insertTransaction(t, repo, 0, "acct-a", 1250, date)

	t.Run("transaction fields survive", func(t *testing.T) {
		got, err := repo.GetByID(ctx, txn.ID)
		require.NoError(t, err)

		assert.Equal(t, txn.Description, got.Description)
		assert.Equal(t, txn.Amount, got.Amount)
		assert.Equal(t, txn.Type, got.Type)
		assert.True(t, got.Date.Equal(date))
		assert.Equal(t, models.LabelUncategorized, got.Label)
	})

	t.Run("stored vectors survive within tolerance", func(t *testing.T) {
		want := testVector(0)

		for _, purpose := range models.AllPurposes {
			got, err := repo.GetEmbedding(ctx, txn.ID, purpose, testModel)
			require.NoError(t, err)
			require.Len(t, got, len(want))

			for i := range want {
				assert.InDelta(t, want[i], got[i], 1e-6)
			}
		}
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrTransactionNotFound)

		_, err = repo.GetEmbedding(ctx, uuid.New(), models.PurposeContent, testModel)
		assert.ErrorIs(t, err, ErrEmbeddingNotFound)
	})
}

func TestNearestByEmbeddingOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionsRepository(db)
	ctx := context.Background()

	date := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	// axis 0 is the query direction; neighbors at decreasing similarity
	exact := insertTransaction(t, repo, 0, "acct-a", 100, date)

	near := &models.Transaction{
		ID: uuid.New(), Description: "near", Amount: 200, Type: models.TransactionTypeDebit,
		Date: date, CounterpartyAccount: "acct-b", Label: "Groceries",
	}
	require.NoError(t, repo.Create(ctx, near, testModel, map[models.EmbeddingPurpose][]float32{
		models.PurposeContent: blendVector(0, 1, 0.9),
	}))

	far := &models.Transaction{
		ID: uuid.New(), Description: "far", Amount: 300, Type: models.TransactionTypeDebit,
		Date: date, CounterpartyAccount: "acct-c", Label: "Dining",
	}
	require.NoError(t, repo.Create(ctx, far, testModel, map[models.EmbeddingPurpose][]float32{
		models.PurposeContent: testVector(2),
	}))

	t.Run("orders by ascending distance with scores in [0,1]", func(t *testing.T) {
		results, err := repo.NearestByEmbedding(ctx, models.PurposeContent, testModel, testVector(0), 10, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, exact.ID, results[0].Transaction.ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.Equal(t, near.ID, results[1].Transaction.ID)
		assert.InDelta(t, 0.9, results[1].Score, 1e-6)
		assert.Equal(t, far.ID, results[2].Transaction.ID)
		assert.InDelta(t, 0.0, results[2].Score, 1e-6)
	})

	t.Run("repeated scans return identical rows", func(t *testing.T) {
		first, err := repo.NearestByEmbedding(ctx, models.PurposeContent, testModel, testVector(0), 10, nil)
		require.NoError(t, err)

		for range 3 {
			again, err := repo.NearestByEmbedding(ctx, models.PurposeContent, testModel, testVector(0), 10, nil)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("excludeID drops the seed row", func(t *testing.T) {
		results, err := repo.NearestByEmbedding(ctx, models.PurposeContent, testModel, testVector(0), 10, &exact.ID)
		require.NoError(t, err)
		require.Len(t, results, 2)

		for _, res := range results {
			assert.NotEqual(t, exact.ID, res.Transaction.ID)
		}
	})

	t.Run("limit caps the result count", func(t *testing.T) {
		results, err := repo.NearestByEmbedding(ctx, models.PurposeContent, testModel, testVector(0), 1, nil)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestReplaceEmbeddingsOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionsRepository(db)
	ctx := context.Background()

	txn := insertTransaction(t, repo, 0, "acct-a", 100, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC))

	require.NoError(t, repo.ReplaceEmbeddings(ctx, txn.ID, testModel, allPurposeVectors(3)))

	// regenerated rows replace the old ones; one row per purpose remains
	var count int

	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM transaction_embeddings WHERE transaction_id = $1 AND model = $2`,
		txn.ID, testModel,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(models.AllPurposes), count)

	got, err := repo.GetEmbedding(ctx, txn.ID, models.PurposeContent, testModel)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got[3], 1e-6)
	assert.InDelta(t, 0.0, got[0], 1e-6)
}

func TestWindowQueries(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionsRepository(db)
	ctx := context.Background()

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC)

	inside := insertTransaction(t, repo, 0, "acct-a", 100, from)
	insertTransaction(t, repo, 1, "acct-b", 200, from.AddDate(0, 0, -1)) // before window
	insertTransaction(t, repo, 2, "acct-c", 300, to)                     // at the exclusive bound

	t.Run("half-open date range", func(t *testing.T) {
		results, err := repo.ListByDateRange(ctx, from, to, models.TransactionFilter{})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, inside.ID, results[0].ID)
	})

	t.Run("distinct counterparties respect the window", func(t *testing.T) {
		counterparties, err := repo.DistinctCounterparties(ctx, from, to, models.TransactionFilter{})
		require.NoError(t, err)

		assert.Equal(t, map[string]struct{}{"acct-a": {}}, counterparties)
	})

	t.Run("filter narrows the scan", func(t *testing.T) {
		minAmount := int64(500)

		results, err := repo.ListByDateRange(ctx, from, to, models.TransactionFilter{MinAmount: &minAmount})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestCounterpartyProfiles(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionsRepository(db)
	ctx := context.Background()

	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i, amount := range []int64{90, 100, 110} {
		insertTransaction(t, repo, i, "acct-a", amount, from.AddDate(0, 0, i))
	}

	insertTransaction(t, repo, 3, "acct-b", 500, from)

	profiles, err := repo.CounterpartyProfiles(ctx, from, to, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	a := profiles["acct-a"]
	assert.Equal(t, int64(3), a.SampleCount)
	assert.InDelta(t, 100, a.Mean, 1e-9)
	assert.InDelta(t, 10, a.StdDev, 1e-9)
	assert.Equal(t, int64(90), a.Min)
	assert.Equal(t, int64(110), a.Max)

	b := profiles["acct-b"]
	assert.Equal(t, int64(1), b.SampleCount)
	// single sample: sample stddev is undefined and coalesces to zero
	assert.Zero(t, b.StdDev)
}

func TestListIDsForEmbeddingBackfill(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionsRepository(db)
	ctx := context.Background()

	date := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	fresh := insertTransaction(t, repo, 0, "acct-a", 100, date)

	// partial: only a content embedding
	partial := &models.Transaction{
		ID: uuid.New(), Description: "partial", Amount: 200, Type: models.TransactionTypeDebit,
		Date: date, CounterpartyAccount: "acct-b", Label: models.LabelUncategorized,
	}
	require.NoError(t, repo.Create(ctx, partial, testModel, map[models.EmbeddingPurpose][]float32{
		models.PurposeContent: testVector(1),
	}))

	// stale: full set, but the transaction row changed afterwards
	stale := insertTransaction(t, repo, 2, "acct-c", 300, date)
	_, err := db.Exec(ctx, `UPDATE transactions SET updated_at = now() + interval '1 hour' WHERE id = $1`, stale.ID)
	require.NoError(t, err)

	ids, err := repo.ListIDsForEmbeddingBackfill(ctx, testModel)
	require.NoError(t, err)

	assert.NotContains(t, ids, fresh.ID)
	assert.Contains(t, ids, partial.ID)
	assert.Contains(t, ids, stale.ID)
}
