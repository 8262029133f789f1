package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumagen/backend/internal/models"
)

const modelColumns = `id, name, provider, endpoint_url, is_active, cost_per_request, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, m *models.AiModel) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ai_models (id, name, provider, endpoint_url, is_active, cost_per_request)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.Provider, m.EndpointURL, m.IsActive, m.CostPerRequest,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ai_model: %w", err)
	}
	return nil
}

// GetByID returns the model regardless of its active flag, or (nil, nil)
// when no row exists. Callers decide whether inactive is acceptable.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.AiModel, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+modelColumns+` FROM ai_models WHERE id = $1`, id)
	m, err := scanModel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *Repository) ListActive(ctx context.Context) ([]*models.AiModel, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+modelColumns+` FROM ai_models
		WHERE is_active = TRUE
		ORDER BY provider, name`)
	if err != nil {
		return nil, fmt.Errorf("list ai_models: %w", err)
	}
	defer rows.Close()

	var out []*models.AiModel
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ai_models SET is_active = $2, updated_at = now() WHERE id = $1`,
		id, active)
	if err != nil {
		return fmt.Errorf("update ai_model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanModel(row pgx.Row) (*models.AiModel, error) {
	var m models.AiModel
	err := row.Scan(&m.ID, &m.Name, &m.Provider, &m.EndpointURL, &m.IsActive, &m.CostPerRequest, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
