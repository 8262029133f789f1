package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumagen/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory EntryStore and BalanceCache mocks. These let us test the real
// chain-maintenance logic without a database.
// ---------------------------------------------------------------------------

type mockStore struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
	clock   time.Time
}

func newMockStore() *mockStore {
	return &mockStore{clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *mockStore) tail(userID uuid.UUID) *models.LedgerEntry {
	var tail *models.LedgerEntry
	for _, e := range m.entries {
		if e.UserID != userID {
			continue
		}
		if tail == nil || e.CreatedAt.After(tail.CreatedAt) ||
			(e.CreatedAt.Equal(tail.CreatedAt) && e.ID.String() > tail.ID.String()) {
			tail = e
		}
	}
	return tail
}

func (m *mockStore) Tail(_ context.Context, userID uuid.UUID) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tail(userID)
	if t == nil {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) TailTx(ctx context.Context, _ pgx.Tx, userID uuid.UUID) (*models.LedgerEntry, error) {
	return m.Tail(ctx, userID)
}

func (m *mockStore) InsertTx(_ context.Context, _ pgx.Tx, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Second)
	e.CreatedAt = m.clock
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockStore) ListByUserID(_ context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) ListByRequestID(_ context.Context, requestID uuid.UUID) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.RequestID != nil && *e.RequestID == requestID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mapCache struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
	deletes  int
}

func newMapCache() *mapCache { return &mapCache{balances: make(map[uuid.UUID]int)} }

func (c *mapCache) Get(_ context.Context, userID uuid.UUID) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.balances[userID]
	return b, ok
}

func (c *mapCache) Set(_ context.Context, userID uuid.UUID, balance int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[userID] = balance
}

func (c *mapCache) Delete(_ context.Context, userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.balances, userID)
	c.deletes++
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCurrentBalance_NoEntries(t *testing.T) {
	svc := NewService(newMockStore(), nil)

	balance, err := svc.CurrentBalance(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("CurrentBalance: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance for unknown user: got %d, want 0", balance)
	}
}

func TestAppendTx_ChainsBalanceAfter(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil)
	user := uuid.New()
	ctx := context.Background()

	amounts := []struct {
		txType string
		amount int
		after  int
	}{
		{models.LedgerTypePurchase, 100, 100},
		{models.LedgerTypeConsumption, -40, 60},
		{models.LedgerTypeRefund, 40, 100},
		{models.LedgerTypeBonus, 25, 125},
	}
	for _, step := range amounts {
		e, err := svc.AppendTx(ctx, nil, user, nil, step.txType, step.amount)
		if err != nil {
			t.Fatalf("AppendTx %s: %v", step.txType, err)
		}
		if e.BalanceAfter != step.after {
			t.Errorf("%s: balance_after got %d, want %d", step.txType, e.BalanceAfter, step.after)
		}
	}

	// Balance equals the sum of all amounts and the tail's balance_after.
	entries, _ := store.ListByUserID(ctx, user)
	sum := 0
	for _, e := range entries {
		sum += e.Amount
	}
	balance, err := svc.CurrentBalance(ctx, user)
	if err != nil {
		t.Fatalf("CurrentBalance: %v", err)
	}
	if balance != sum {
		t.Errorf("balance %d != ledger sum %d", balance, sum)
	}
	if balance != 125 {
		t.Errorf("balance: got %d, want 125", balance)
	}
}

func TestAppendTx_DebitBelowZero(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil)
	user := uuid.New()
	ctx := context.Background()

	if _, err := svc.AppendTx(ctx, nil, user, nil, models.LedgerTypePurchase, 10); err != nil {
		t.Fatalf("AppendTx purchase: %v", err)
	}

	_, err := svc.AppendTx(ctx, nil, user, nil, models.LedgerTypeConsumption, -11)
	var insufficient *InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	if insufficient.Required != 11 || insufficient.Available != 10 {
		t.Errorf("error fields: got required=%d available=%d, want 11/10", insufficient.Required, insufficient.Available)
	}

	// Nothing was written.
	entries, _ := store.ListByUserID(ctx, user)
	if len(entries) != 1 {
		t.Errorf("entries after rejected debit: got %d, want 1", len(entries))
	}
}

func TestCurrentBalance_CacheHitAndInvalidate(t *testing.T) {
	store := newMockStore()
	cache := newMapCache()
	svc := NewService(store, cache)
	user := uuid.New()
	ctx := context.Background()

	if _, err := svc.AppendTx(ctx, nil, user, nil, models.LedgerTypePurchase, 50); err != nil {
		t.Fatalf("AppendTx: %v", err)
	}

	// First read populates the cache.
	if b, _ := svc.CurrentBalance(ctx, user); b != 50 {
		t.Fatalf("balance: got %d, want 50", b)
	}
	if _, ok := cache.Get(ctx, user); !ok {
		t.Error("expected cache to be populated after read")
	}

	// A stale cached value wins until invalidated: that is why every
	// append commit must invalidate.
	cache.Set(ctx, user, 999)
	if b, _ := svc.CurrentBalance(ctx, user); b != 999 {
		t.Fatalf("expected cached balance 999, got %d", b)
	}
	svc.InvalidateBalance(ctx, user)
	if b, _ := svc.CurrentBalance(ctx, user); b != 50 {
		t.Errorf("balance after invalidate: got %d, want 50", b)
	}
	if cache.deletes != 1 {
		t.Errorf("cache deletes: got %d, want 1", cache.deletes)
	}
}

func TestListForRequest(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil)
	user := uuid.New()
	request := uuid.New()
	ctx := context.Background()

	if _, err := svc.AppendTx(ctx, nil, user, nil, models.LedgerTypePurchase, 20); err != nil {
		t.Fatalf("AppendTx: %v", err)
	}
	if _, err := svc.AppendTx(ctx, nil, user, &request, models.LedgerTypeConsumption, -5); err != nil {
		t.Fatalf("AppendTx: %v", err)
	}
	if _, err := svc.AppendTx(ctx, nil, user, &request, models.LedgerTypeRefund, 5); err != nil {
		t.Fatalf("AppendTx: %v", err)
	}

	entries, err := svc.ListForRequest(ctx, request)
	if err != nil {
		t.Fatalf("ListForRequest: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries for request: got %d, want 2", len(entries))
	}
}
