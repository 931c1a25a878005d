// Package repository handles data access for transactions and their embedding vectors.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ledgerlens/ledgerlens/internal/models"
)

// ErrTransactionNotFound is returned when no transaction row exists for the given ID.
var ErrTransactionNotFound = errors.New("transaction not found")

// ErrEmbeddingNotFound is returned when no embedding row exists for the given
// transaction, purpose, and model.
var ErrEmbeddingNotFound = errors.New("embedding not found for transaction, purpose, and model")

const transactionColumns = `id, description, amount, type, date,
	counterparty_account, counterparty_name, category_code, label, created_at, updated_at`

// TransactionsRepository handles data access for the transactions and
// transaction_embeddings tables.
type TransactionsRepository struct {
	db *pgxpool.Pool
}

// NewTransactionsRepository creates a new transactions repository.
func NewTransactionsRepository(db *pgxpool.Pool) *TransactionsRepository {
	return &TransactionsRepository{db: db}
}

// Create inserts the transaction and all of its purpose embeddings in one
// database transaction. The assigned label is part of the same write; there
// is no separate "assign label later" step.
func (r *TransactionsRepository) Create(
	ctx context.Context, txn *models.Transaction, model string, embeddings map[models.EmbeddingPurpose][]float32,
) error {
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now

	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback(ctx) }()

	_, err = dbTx.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		txn.ID, txn.Description, txn.Amount, txn.Type, txn.Date,
		txn.CounterpartyAccount, txn.CounterpartyName, txn.CategoryCode, txn.Label,
		txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	if err := upsertEmbeddings(ctx, dbTx, txn.ID, model, embeddings, now); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create transaction: %w", err)
	}

	return nil
}

// ReplaceEmbeddings overwrites every stored purpose embedding for the
// transaction in one database transaction (delete + insert, never append).
func (r *TransactionsRepository) ReplaceEmbeddings(
	ctx context.Context, transactionID uuid.UUID, model string, embeddings map[models.EmbeddingPurpose][]float32,
) error {
	now := time.Now()

	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace embeddings: %w", err)
	}
	defer func() { _ = dbTx.Rollback(ctx) }()

	_, err = dbTx.Exec(ctx,
		`DELETE FROM transaction_embeddings WHERE transaction_id = $1 AND model = $2`,
		transactionID, model,
	)
	if err != nil {
		return fmt.Errorf("delete old embeddings: %w", err)
	}

	if err := upsertEmbeddings(ctx, dbTx, transactionID, model, embeddings, now); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace embeddings: %w", err)
	}

	return nil
}

func upsertEmbeddings(
	ctx context.Context, dbTx pgx.Tx, transactionID uuid.UUID,
	model string, embeddings map[models.EmbeddingPurpose][]float32, now time.Time,
) error {
	// Fixed purpose order keeps multi-row writes deterministic.
	for _, purpose := range models.AllPurposes {
		vec, ok := embeddings[purpose]
		if !ok {
			continue
		}

		_, err := dbTx.Exec(ctx, `
			INSERT INTO transaction_embeddings (transaction_id, purpose, model, embedding, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (transaction_id, purpose, model)
			DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = $5`,
			transactionID, purpose, model, pgvector.NewVector(vec), now,
		)
		if err != nil {
			return fmt.Errorf("upsert %s embedding: %w", purpose, err)
		}
	}

	return nil
}

// GetByID returns the transaction with the given ID.
// Returns ErrTransactionNotFound when no row exists.
func (r *TransactionsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}

		return nil, fmt.Errorf("get transaction: %w", err)
	}

	return txn, nil
}

// GetEmbedding returns the stored vector for the given transaction, purpose, and model.
// Returns ErrEmbeddingNotFound when no row exists (transaction not embedded yet).
func (r *TransactionsRepository) GetEmbedding(
	ctx context.Context, transactionID uuid.UUID, purpose models.EmbeddingPurpose, model string,
) ([]float32, error) {
	var vec pgvector.Vector

	err := r.db.QueryRow(ctx,
		`SELECT embedding FROM transaction_embeddings
		 WHERE transaction_id = $1 AND purpose = $2 AND model = $3`,
		transactionID, purpose, model,
	).Scan(&vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmbeddingNotFound
		}

		return nil, fmt.Errorf("get embedding: %w", err)
	}

	return vec.Slice(), nil
}

// NearestByEmbedding returns transactions and similarity scores (0..1) for the
// nearest neighbors to queryEmbedding on the given purpose index. Uses cosine
// distance (<=>); score = 1 - distance. Equal distances are ordered by
// transaction ID so repeated calls on unchanged data return identical rows.
// excludeID optionally excludes one transaction (e.g. for "similar" lookups).
func (r *TransactionsRepository) NearestByEmbedding(
	ctx context.Context, purpose models.EmbeddingPurpose, model string,
	queryEmbedding []float32, limit int, excludeID *uuid.UUID,
) ([]models.TransactionWithScore, error) {
	queryVec := pgvector.NewVector(queryEmbedding)

	var (
		rows pgx.Rows
		err  error
	)

	if excludeID == nil {
		rows, err = r.db.Query(ctx, `
			SELECT t.id, t.description, t.amount, t.type, t.date,
			       t.counterparty_account, t.counterparty_name, t.category_code, t.label,
			       t.created_at, t.updated_at,
			       (1 - (e.embedding <=> $1)) AS score
			FROM transaction_embeddings e
			INNER JOIN transactions t ON t.id = e.transaction_id
			WHERE e.purpose = $2 AND e.model = $3
			ORDER BY e.embedding <=> $1, e.transaction_id
			LIMIT $4`, queryVec, purpose, model, limit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT t.id, t.description, t.amount, t.type, t.date,
			       t.counterparty_account, t.counterparty_name, t.category_code, t.label,
			       t.created_at, t.updated_at,
			       (1 - (e.embedding <=> $1)) AS score
			FROM transaction_embeddings e
			INNER JOIN transactions t ON t.id = e.transaction_id
			WHERE e.purpose = $2 AND e.model = $3 AND e.transaction_id != $4
			ORDER BY e.embedding <=> $1, e.transaction_id
			LIMIT $5`, queryVec, purpose, model, *excludeID, limit)
	}

	if err != nil {
		return nil, fmt.Errorf("nearest transactions: %w", err)
	}

	defer rows.Close()

	var results []models.TransactionWithScore

	for rows.Next() {
		var res models.TransactionWithScore

		err := rows.Scan(
			&res.Transaction.ID, &res.Transaction.Description, &res.Transaction.Amount,
			&res.Transaction.Type, &res.Transaction.Date,
			&res.Transaction.CounterpartyAccount, &res.Transaction.CounterpartyName,
			&res.Transaction.CategoryCode, &res.Transaction.Label,
			&res.Transaction.CreatedAt, &res.Transaction.UpdatedAt,
			&res.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction with score: %w", err)
		}

		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearest: %w", err)
	}

	return results, nil
}

// ListByDateRange returns transactions with from <= date < to, after filters,
// ordered by date then ID.
func (r *TransactionsRepository) ListByDateRange(
	ctx context.Context, from, to time.Time, filter models.TransactionFilter,
) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE date >= $1 AND date < $2`
	args := []any{from, to}
	query, args = appendFilter(query, args, filter)
	query += ` ORDER BY date, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions by date range: %w", err)
	}
	defer rows.Close()

	var results []models.Transaction

	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		results = append(results, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}

	return results, nil
}

// DistinctCounterparties returns the distinct counterparty accounts with
// from <= date < to, after filters.
func (r *TransactionsRepository) DistinctCounterparties(
	ctx context.Context, from, to time.Time, filter models.TransactionFilter,
) (map[string]struct{}, error) {
	query := `SELECT DISTINCT counterparty_account FROM transactions WHERE date >= $1 AND date < $2`
	args := []any{from, to}
	query, args = appendFilter(query, args, filter)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("distinct counterparties: %w", err)
	}
	defer rows.Close()

	counterparties := make(map[string]struct{})

	for rows.Next() {
		var account string
		if err := rows.Scan(&account); err != nil {
			return nil, fmt.Errorf("scan counterparty: %w", err)
		}

		counterparties[account] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counterparties: %w", err)
	}

	return counterparties, nil
}

// CounterpartyProfiles computes per-counterparty amount baselines (sample
// count, mean, sample standard deviation, min, max) over from <= date < to,
// after filters. Profiles are derived per request and never persisted.
func (r *TransactionsRepository) CounterpartyProfiles(
	ctx context.Context, from, to time.Time, filter models.TransactionFilter,
) (map[string]models.CounterpartyProfile, error) {
	query := `
		SELECT counterparty_account, COUNT(*), AVG(amount),
		       COALESCE(STDDEV_SAMP(amount), 0), MIN(amount), MAX(amount)
		FROM transactions WHERE date >= $1 AND date < $2`
	args := []any{from, to}
	query, args = appendFilter(query, args, filter)
	query += ` GROUP BY counterparty_account`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counterparty profiles: %w", err)
	}
	defer rows.Close()

	profiles := make(map[string]models.CounterpartyProfile)

	for rows.Next() {
		var p models.CounterpartyProfile

		err := rows.Scan(&p.Counterparty, &p.SampleCount, &p.Mean, &p.StdDev, &p.Min, &p.Max)
		if err != nil {
			return nil, fmt.Errorf("scan counterparty profile: %w", err)
		}

		profiles[p.Counterparty] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counterparty profiles: %w", err)
	}

	return profiles, nil
}

// ListIDsForEmbeddingBackfill returns IDs of transactions that are missing at
// least one purpose embedding for the model, or whose row changed after the
// embeddings were written (description/amount/category edits make the stored
// vectors stale; they must be regenerated, not appended to).
func (r *TransactionsRepository) ListIDsForEmbeddingBackfill(ctx context.Context, model string) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id FROM transactions t
		WHERE (
			SELECT count(*) FROM transaction_embeddings e
			WHERE e.transaction_id = t.id AND e.model = $1 AND e.updated_at >= t.updated_at
		) < $2
		ORDER BY t.id`, model, len(models.AllPurposes))
	if err != nil {
		return nil, fmt.Errorf("list transaction ids for backfill: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan transaction id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating backfill ids: %w", err)
	}

	return ids, nil
}

// appendFilter adds the optional filter conditions to a WHERE clause already
// holding len(args) placeholders.
func appendFilter(query string, args []any, filter models.TransactionFilter) (string, []any) {
	var conds []string

	if filter.Counterparty != "" {
		args = append(args, filter.Counterparty)
		conds = append(conds, fmt.Sprintf("counterparty_account = $%d", len(args)))
	}

	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}

	if filter.MinAmount != nil {
		args = append(args, *filter.MinAmount)
		conds = append(conds, fmt.Sprintf("amount >= $%d", len(args)))
	}

	if filter.MaxAmount != nil {
		args = append(args, *filter.MaxAmount)
		conds = append(conds, fmt.Sprintf("amount <= $%d", len(args)))
	}

	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
	}

	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var txn models.Transaction

	err := row.Scan(
		&txn.ID, &txn.Description, &txn.Amount, &txn.Type, &txn.Date,
		&txn.CounterpartyAccount, &txn.CounterpartyName, &txn.CategoryCode, &txn.Label,
		&txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &txn, nil
}
