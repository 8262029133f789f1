package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumagen/backend/internal/models"
)

// InsufficientCreditsError is returned when a debit would take the balance
// below zero.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// EntryStore is the minimal persistence interface for the ledger service.
type EntryStore interface {
	Tail(ctx context.Context, userID uuid.UUID) (*models.LedgerEntry, error)
	TailTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.LedgerEntry, error)
	InsertTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error)
	ListByRequestID(ctx context.Context, requestID uuid.UUID) ([]*models.LedgerEntry, error)
}

// Service derives balances from the append-only ledger and appends new
// entries with the balance_after chain maintained.
type Service interface {
	// CurrentBalance returns the tail entry's balance_after, or 0 for a
	// user with no entries.
	CurrentBalance(ctx context.Context, userID uuid.UUID) (int, error)

	// BalanceTx reads the balance inside the caller's transaction. The
	// caller must hold the user row lock.
	BalanceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int, error)

	// AppendTx appends one entry inside the caller's transaction, chaining
	// balance_after from the current tail. A debit that would go negative
	// fails with *InsufficientCreditsError and writes nothing. The caller
	// must hold the user row lock and call InvalidateBalance after commit.
	AppendTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, requestID *uuid.UUID, txType string, amount int) (*models.LedgerEntry, error)

	// InvalidateBalance drops any cached balance for the user.
	InvalidateBalance(ctx context.Context, userID uuid.UUID)

	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error)
	ListForRequest(ctx context.Context, requestID uuid.UUID) ([]*models.LedgerEntry, error)
}

type service struct {
	store EntryStore
	cache BalanceCache
}

// NewService returns the ledger service. cache may be nil; balances are
// then always resolved from the store.
func NewService(store EntryStore, cache BalanceCache) Service {
	if cache == nil {
		cache = noopCache{}
	}
	return &service{store: store, cache: cache}
}

var _ Service = (*service)(nil)

func (s *service) CurrentBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	if balance, ok := s.cache.Get(ctx, userID); ok {
		return balance, nil
	}
	tail, err := s.store.Tail(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("ledger tail: %w", err)
	}
	balance := 0
	if tail != nil {
		balance = tail.BalanceAfter
	}
	s.cache.Set(ctx, userID, balance)
	return balance, nil
}

func (s *service) BalanceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int, error) {
	tail, err := s.store.TailTx(ctx, tx, userID)
	if err != nil {
		return 0, fmt.Errorf("ledger tail: %w", err)
	}
	if tail == nil {
		return 0, nil
	}
	return tail.BalanceAfter, nil
}

func (s *service) AppendTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, requestID *uuid.UUID, txType string, amount int) (*models.LedgerEntry, error) {
	balance, err := s.BalanceTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	after := balance + amount
	if after < 0 {
		return nil, &InsufficientCreditsError{Required: -amount, Available: balance}
	}
	entry := &models.LedgerEntry{
		ID:              uuid.New(),
		UserID:          userID,
		RequestID:       requestID,
		TransactionType: txType,
		Amount:          amount,
		BalanceAfter:    after,
	}
	if err := s.store.InsertTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return entry, nil
}

func (s *service) InvalidateBalance(ctx context.Context, userID uuid.UUID) {
	s.cache.Delete(ctx, userID)
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.store.ListByUserID(ctx, userID)
}

func (s *service) ListForRequest(ctx context.Context, requestID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.store.ListByRequestID(ctx, requestID)
}
