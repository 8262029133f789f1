package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumagen/backend/internal/models"
)

const requestColumns = `id, user_id, model_id, prompt, negative_prompt, aspect_ratio, num_outputs, style_preset, seed, quality, api_parameters, status, credits_charged, error_message, requested_at, processing_started_at, completed_at`

type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

// RequestFilters narrows List results. Zero values mean "no filter".
type RequestFilters struct {
	Status  string
	ModelID uuid.UUID
}

func scanRequest(row pgx.Row) (*models.GenerationRequest, error) {
	var gr models.GenerationRequest
	err := row.Scan(&gr.ID, &gr.UserID, &gr.ModelID, &gr.Prompt, &gr.NegativePrompt, &gr.AspectRatio, &gr.NumOutputs, &gr.StylePreset, &gr.Seed, &gr.Quality, &gr.APIParameters, &gr.Status, &gr.CreditsCharged, &gr.ErrorMessage, &gr.RequestedAt, &gr.ProcessingStartedAt, &gr.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &gr, nil
}

// CreateTx inserts the request inside the given transaction, alongside its
// consumption ledger entry.
func (r *RequestRepo) CreateTx(ctx context.Context, tx pgx.Tx, gr *models.GenerationRequest) error {
	return tx.QueryRow(ctx, `
		INSERT INTO generation_requests (id, user_id, model_id, prompt, negative_prompt, aspect_ratio, num_outputs, style_preset, seed, quality, api_parameters, status, credits_charged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING requested_at
	`, gr.ID, gr.UserID, gr.ModelID, gr.Prompt, gr.NegativePrompt, gr.AspectRatio, gr.NumOutputs, gr.StylePreset, gr.Seed, gr.Quality, gr.APIParameters, gr.Status, gr.CreditsCharged).Scan(&gr.RequestedAt)
}

func (r *RequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationRequest, error) {
	return scanRequest(r.pool.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM generation_requests WHERE id = $1
	`, id))
}

// GetByIDForUpdate locks the request row for a state transition. Call
// within a transaction.
func (r *RequestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.GenerationRequest, error) {
	return scanRequest(tx.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM generation_requests WHERE id = $1 FOR UPDATE
	`, id))
}

// MarkProcessing transitions pending -> processing. Returns false when the
// request is no longer pending (e.g. cancelled while queued).
func (r *RequestRepo) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE generation_requests SET status = $2, processing_started_at = $3
		WHERE id = $1 AND status = $4
	`, id, models.RequestStatusProcessing, startedAt, models.RequestStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCompleted transitions processing -> completed.
func (r *RequestRepo) MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE generation_requests SET status = $2, completed_at = $3
		WHERE id = $1 AND status = $4
	`, id, models.RequestStatusCompleted, completedAt, models.RequestStatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailedTx writes the terminal failed state inside the caller's
// transaction, alongside the refund ledger entry.
func (r *RequestRepo) MarkFailedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, errorMessage string, completedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE generation_requests SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1
	`, id, models.RequestStatusFailed, errorMessage, completedAt)
	return err
}

// ListByUser returns one page of the user's requests, newest first, plus
// the total count matching the filters.
func (r *RequestRepo) ListByUser(ctx context.Context, userID uuid.UUID, f RequestFilters, limit, offset int) ([]*models.GenerationRequest, int, error) {
	where := `WHERE user_id = $1`
	args := []any{userID}
	if f.Status != "" {
		args = append(args, f.Status)
		where += ` AND status = $2`
	}
	if f.ModelID != uuid.Nil {
		args = append(args, f.ModelID)
		if f.Status != "" {
			where += ` AND model_id = $3`
		} else {
			where += ` AND model_id = $2`
		}
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM generation_requests `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + requestColumns + ` FROM generation_requests ` + where +
		` ORDER BY requested_at DESC LIMIT ` + placeholder(len(args)+1) + ` OFFSET ` + placeholder(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []*models.GenerationRequest
	for rows.Next() {
		gr, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, gr)
	}
	return list, total, rows.Err()
}

// CountForUserSince counts the user's requests created at or after the
// given instant. Used by the daily quota middleware.
func (r *RequestRepo) CountForUserSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM generation_requests WHERE user_id = $1 AND requested_at >= $2
	`, userID, since).Scan(&n)
	return n, err
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
