package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/lumagen/backend/internal/models"
)

type mockModelStore struct {
	models map[uuid.UUID]*models.AiModel
}

func newMockModelStore() *mockModelStore {
	return &mockModelStore{models: make(map[uuid.UUID]*models.AiModel)}
}

func (m *mockModelStore) Create(_ context.Context, am *models.AiModel) error {
	cp := *am
	m.models[am.ID] = &cp
	return nil
}

func (m *mockModelStore) GetByID(_ context.Context, id uuid.UUID) (*models.AiModel, error) {
	am, ok := m.models[id]
	if !ok {
		return nil, nil
	}
	cp := *am
	return &cp, nil
}

func (m *mockModelStore) ListActive(_ context.Context) ([]*models.AiModel, error) {
	var out []*models.AiModel
	for _, am := range m.models {
		if am.IsActive {
			cp := *am
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockModelStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	am, ok := m.models[id]
	if !ok {
		return errors.New("no such model")
	}
	am.IsActive = active
	return nil
}

func TestRegisterAndDeactivateModel(t *testing.T) {
	store := newMockModelStore()
	svc := NewService(store)
	ctx := context.Background()

	m, err := svc.RegisterModel(ctx, "sdxl", "stability", "https://provider.test/v1/generate", 2.5)
	if err != nil {
		t.Fatalf("RegisterModel: %v", err)
	}
	if !m.IsActive || m.CostPerRequest != 2.5 {
		t.Errorf("registered model: %+v", m)
	}

	active, err := svc.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active models: got %d, want 1", len(active))
	}

	if err := svc.SetModelActive(ctx, m.ID, false); err != nil {
		t.Fatalf("SetModelActive: %v", err)
	}
	active, _ = svc.ListModels(ctx)
	if len(active) != 0 {
		t.Errorf("active after deactivate: got %d, want 0", len(active))
	}

	// GetModel still resolves the deactivated row; submission is refused
	// further up on the active flag.
	got, err := svc.GetModel(ctx, m.ID)
	if err != nil || got == nil || got.IsActive {
		t.Errorf("GetModel after deactivate: got %+v, err %v", got, err)
	}
}
