package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumagen/backend/internal/models"
)

const entryColumns = `id, user_id, request_id, transaction_type, amount, balance_after, created_at`

// Repository persists ledger entries. Entries are append-only: there is no
// update or delete here, and must never be.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.UserID, &e.RequestID, &e.TransactionType, &e.Amount, &e.BalanceAfter, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Tail returns the user's most recent entry, ordered by transaction time
// with ties broken by id, or nil when the user has no entries.
func (r *Repository) Tail(ctx context.Context, userID uuid.UUID) (*models.LedgerEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// TailTx is Tail inside the caller's transaction. The caller must already
// hold the user row lock; that lock, not this query, is what serializes
// concurrent appends.
func (r *Repository) TailTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.LedgerEntry, error) {
	e, err := scanEntry(tx.QueryRow(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// InsertTx appends an entry inside the given transaction.
func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, user_id, request_id, transaction_type, amount, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.UserID, e.RequestID, e.TransactionType, e.Amount, e.BalanceAfter).Scan(&e.CreatedAt)
}

func (r *Repository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *Repository) ListByRequestID(ctx context.Context, requestID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE request_id = $1 ORDER BY created_at, id
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
