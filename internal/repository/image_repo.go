package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumagen/backend/internal/models"
)

type ImageRepo struct {
	pool *pgxpool.Pool
}

func NewImageRepo(pool *pgxpool.Pool) *ImageRepo {
	return &ImageRepo{pool: pool}
}

// CreateForRequest inserts an image row. user_id is copied from the owning
// request inside the INSERT so callers can never set it independently.
func (r *ImageRepo) CreateForRequest(ctx context.Context, img *models.Image) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO images (id, request_id, user_id, url, width, height, seed)
		SELECT $1, gr.id, gr.user_id, $3, $4, $5, $6
		FROM generation_requests gr WHERE gr.id = $2
		RETURNING user_id, created_at
	`, img.ID, img.RequestID, img.URL, img.Width, img.Height, img.Seed).Scan(&img.UserID, &img.CreatedAt)
}

func (r *ImageRepo) ListByRequestID(ctx context.Context, requestID uuid.UUID) ([]*models.Image, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, request_id, user_id, url, width, height, seed, created_at
		FROM images WHERE request_id = $1 ORDER BY created_at
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.RequestID, &img.UserID, &img.URL, &img.Width, &img.Height, &img.Seed, &img.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &img)
	}
	return list, rows.Err()
}
