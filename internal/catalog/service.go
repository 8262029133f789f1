package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/lumagen/backend/internal/models"
)

// ModelStore is the repository surface the service needs.
type ModelStore interface {
	Create(ctx context.Context, m *models.AiModel) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AiModel, error)
	ListActive(ctx context.Context) ([]*models.AiModel, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type Service interface {
	ListModels(ctx context.Context) ([]*models.AiModel, error)
	GetModel(ctx context.Context, id uuid.UUID) (*models.AiModel, error)
	RegisterModel(ctx context.Context, name, provider, endpointURL string, costPerRequest float64) (*models.AiModel, error)
	SetModelActive(ctx context.Context, id uuid.UUID, active bool) error
}

type service struct {
	store ModelStore
}

func NewService(store ModelStore) *service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

func (s *service) ListModels(ctx context.Context) ([]*models.AiModel, error) {
	return s.store.ListActive(ctx)
}

func (s *service) GetModel(ctx context.Context, id uuid.UUID) (*models.AiModel, error) {
	return s.store.GetByID(ctx, id)
}

func (s *service) RegisterModel(ctx context.Context, name, provider, endpointURL string, costPerRequest float64) (*models.AiModel, error) {
	m := &models.AiModel{
		ID:             uuid.New(),
		Name:           name,
		Provider:       provider,
		EndpointURL:    endpointURL,
		IsActive:       true,
		CostPerRequest: costPerRequest,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *service) SetModelActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.store.SetActive(ctx, id, active)
}
