package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lumagen/backend/internal/execution"
	"github.com/lumagen/backend/internal/ledger"
	"github.com/lumagen/backend/internal/models"
	"github.com/lumagen/backend/internal/repository"
)

const maxConflictRetries = 3

// TxBeginner abstracts transaction creation so tests don't need a
// pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UserStore locks user rows; the lock serializes check-then-write per user.
type UserStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error)
}

// RequestStore is the subset of the request repository the lifecycle needs.
type RequestStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, gr *models.GenerationRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationRequest, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.GenerationRequest, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error)
	MarkFailedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, errorMessage string, completedAt time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID, f repository.RequestFilters, limit, offset int) ([]*models.GenerationRequest, int, error)
}

// ImageStore records generated outputs.
type ImageStore interface {
	CreateForRequest(ctx context.Context, img *models.Image) error
	ListByRequestID(ctx context.Context, requestID uuid.UUID) ([]*models.Image, error)
}

// ModelCatalog is the read-only catalog collaborator.
type ModelCatalog interface {
	GetModel(ctx context.Context, id uuid.UUID) (*models.AiModel, error)
}

// EnqueueGenerateTxFunc enqueues a generation job within the given
// transaction. Provided by main using river.Client.InsertTx, so a rolled
// back submit never dispatches.
type EnqueueGenerateTxFunc func(ctx context.Context, tx pgx.Tx, args execution.GenerateImageJobArgs) error

// SubmitParams is the closed set of generation parameters accepted by
// Submit. Everything provider-specific travels in APIParameters.
type SubmitParams struct {
	ModelID        uuid.UUID
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	NumOutputs     int
	StylePreset    string
	Seed           *int64
	Quality        string
	APIParameters  json.RawMessage
}

// RequestDetail is the full view of one request: the row, its outputs, and
// every ledger entry it produced.
type RequestDetail struct {
	Request *models.GenerationRequest `json:"request"`
	Images  []*models.Image           `json:"images"`
	Ledger  []*models.LedgerEntry     `json:"credit_transactions"`
}

// Lifecycle owns the generation-request state machine and keeps it
// consistent with the credit ledger.
type Lifecycle struct {
	pool      TxBeginner
	users     UserStore
	requests  RequestStore
	images    ImageStore
	catalog   ModelCatalog
	ledger    ledger.Service
	validator *Validator
	enqueue   EnqueueGenerateTxFunc
	log       *slog.Logger
}

// Ensure Lifecycle satisfies the worker's view of it at compile time.
var _ execution.RequestService = (*Lifecycle)(nil)

func NewLifecycle(
	pool TxBeginner,
	users UserStore,
	requests RequestStore,
	images ImageStore,
	catalog ModelCatalog,
	ledgerSvc ledger.Service,
	validator *Validator,
	enqueue EnqueueGenerateTxFunc,
	log *slog.Logger,
) *Lifecycle {
	if log == nil {
		log = slog.Default()
	}
	return &Lifecycle{
		pool:      pool,
		users:     users,
		requests:  requests,
		images:    images,
		catalog:   catalog,
		ledger:    ledgerSvc,
		validator: validator,
		enqueue:   enqueue,
		log:       log,
	}
}

func (l *Lifecycle) validateSubmit(p *SubmitParams) error {
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	if p.NumOutputs == 0 {
		p.NumOutputs = 1
	}
	if p.NumOutputs < 1 || p.NumOutputs > 4 {
		return fmt.Errorf("%w: num_outputs must be between 1 and 4", ErrValidation)
	}
	if p.AspectRatio == "" {
		p.AspectRatio = "1:1"
	}
	return nil
}

// Submit prices the request against the catalog, gates it on the user's
// balance, and atomically creates the pending request, debits the ledger,
// and enqueues the generation job.
func (l *Lifecycle) Submit(ctx context.Context, userID uuid.UUID, params SubmitParams) (*models.GenerationRequest, error) {
	if err := l.validateSubmit(&params); err != nil {
		return nil, err
	}

	model, err := l.catalog.GetModel(ctx, params.ModelID)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	if model == nil || !model.IsActive {
		return nil, ErrInvalidModel
	}
	if l.validator != nil {
		if err := l.validator.ValidateParams(model.Provider, params.APIParameters); err != nil {
			return nil, err
		}
	}

	required := RequiredCredits(params.NumOutputs, model.CostPerRequest)

	var gr *models.GenerationRequest
	err = l.withConflictRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := l.users.GetByIDForUpdate(ctx, tx, userID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		balance, err := l.ledger.BalanceTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balance < required {
			return &ledger.InsufficientCreditsError{Required: required, Available: balance}
		}

		gr = &models.GenerationRequest{
			ID:             uuid.New(),
			UserID:         userID,
			ModelID:        model.ID,
			Prompt:         params.Prompt,
			NegativePrompt: params.NegativePrompt,
			AspectRatio:    params.AspectRatio,
			NumOutputs:     params.NumOutputs,
			StylePreset:    params.StylePreset,
			Seed:           params.Seed,
			Quality:        params.Quality,
			APIParameters:  params.APIParameters,
			Status:         models.RequestStatusPending,
			CreditsCharged: required,
		}
		if err := l.requests.CreateTx(ctx, tx, gr); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if _, err := l.ledger.AppendTx(ctx, tx, userID, &gr.ID, models.LedgerTypeConsumption, -required); err != nil {
			return err
		}
		return l.enqueue(ctx, tx, execution.GenerateImageJobArgs{RequestID: gr.ID})
	})
	if err != nil {
		return nil, err
	}
	l.ledger.InvalidateBalance(ctx, userID)
	return gr, nil
}

// Cancel moves a non-terminal request to failed and refunds its charge.
// Cancelling a terminal request fails with ErrInvalidState; the refund can
// never happen twice.
func (l *Lifecycle) Cancel(ctx context.Context, userID, requestID uuid.UUID) (int, error) {
	refunded := 0
	err := l.withConflictRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		gr, err := l.requests.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("load request: %w", err)
		}
		if gr.UserID != userID {
			return ErrNotFound
		}
		if models.IsTerminalStatus(gr.Status) {
			return ErrInvalidState
		}

		if err := l.requests.MarkFailedTx(ctx, tx, gr.ID, "Cancelled by user", time.Now().UTC()); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		if gr.CreditsCharged > 0 {
			if _, err := l.users.GetByIDForUpdate(ctx, tx, userID); err != nil {
				return fmt.Errorf("lock user: %w", err)
			}
			if _, err := l.ledger.AppendTx(ctx, tx, userID, &gr.ID, models.LedgerTypeRefund, gr.CreditsCharged); err != nil {
				return err
			}
		}
		refunded = gr.CreditsCharged
		return nil
	})
	if err != nil {
		return 0, err
	}
	l.ledger.InvalidateBalance(ctx, userID)
	return refunded, nil
}

// List is a pure read of one page of the user's requests, newest first.
func (l *Lifecycle) List(ctx context.Context, userID uuid.UUID, filters repository.RequestFilters, limit, offset int) ([]*models.GenerationRequest, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return l.requests.ListByUser(ctx, userID, filters, limit, offset)
}

// GetByID returns the full detail of one request. A request owned by
// another user is reported as not found, not forbidden.
func (l *Lifecycle) GetByID(ctx context.Context, userID, requestID uuid.UUID) (*RequestDetail, error) {
	gr, err := l.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load request: %w", err)
	}
	if gr.UserID != userID {
		return nil, ErrNotFound
	}
	images, err := l.images.ListByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	entries, err := l.ledger.ListForRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load ledger entries: %w", err)
	}
	return &RequestDetail{Request: gr, Images: images, Ledger: entries}, nil
}

// GrantCredits appends a positive purchase or bonus entry. This is the
// payment collaborator's entry point into the ledger.
func (l *Lifecycle) GrantCredits(ctx context.Context, userID uuid.UUID, txType string, amount int) (*models.LedgerEntry, error) {
	if txType != models.LedgerTypePurchase && txType != models.LedgerTypeBonus {
		return nil, fmt.Errorf("%w: transaction_type must be purchase or bonus", ErrValidation)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be > 0", ErrValidation)
	}
	var entry *models.LedgerEntry
	err := l.withConflictRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := l.users.GetByIDForUpdate(ctx, tx, userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock user: %w", err)
		}
		var err error
		entry, err = l.ledger.AppendTx(ctx, tx, userID, nil, txType, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.ledger.InvalidateBalance(ctx, userID)
	return entry, nil
}

// --- transitions driven by the generation worker ---

// StartProcessing moves pending -> processing and returns the request with
// its catalog model. ErrInvalidState means the request was cancelled while
// queued and the job should be dropped.
func (l *Lifecycle) StartProcessing(ctx context.Context, requestID uuid.UUID) (*models.GenerationRequest, *models.AiModel, error) {
	ok, err := l.requests.MarkProcessing(ctx, requestID, time.Now().UTC())
	if err != nil {
		return nil, nil, fmt.Errorf("mark processing: %w", err)
	}
	if !ok {
		return nil, nil, ErrInvalidState
	}
	gr, err := l.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("load request: %w", err)
	}
	model, err := l.catalog.GetModel(ctx, gr.ModelID)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog lookup: %w", err)
	}
	if model == nil {
		return nil, nil, ErrInvalidModel
	}
	return gr, model, nil
}

// CompleteRequest moves processing -> completed and records the outputs.
func (l *Lifecycle) CompleteRequest(ctx context.Context, requestID uuid.UUID, images []execution.GeneratedImage) error {
	ok, err := l.requests.MarkCompleted(ctx, requestID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if !ok {
		return ErrInvalidState
	}
	for _, out := range images {
		img := &models.Image{
			ID:        uuid.New(),
			RequestID: requestID,
			URL:       out.URL,
			Width:     out.Width,
			Height:    out.Height,
			Seed:      out.Seed,
		}
		if err := l.images.CreateForRequest(ctx, img); err != nil {
			l.log.Error("record generated image", "request_id", requestID, "error", err)
		}
	}
	return nil
}

// FailRequest moves a non-terminal request to failed and refunds its
// charge; the terminal-state guard makes it a no-refund ErrInvalidState
// when a user cancel already won.
func (l *Lifecycle) FailRequest(ctx context.Context, requestID uuid.UUID, reason string) error {
	return l.withConflictRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		gr, err := l.requests.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("load request: %w", err)
		}
		if models.IsTerminalStatus(gr.Status) {
			return ErrInvalidState
		}
		if err := l.requests.MarkFailedTx(ctx, tx, gr.ID, reason, time.Now().UTC()); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		if gr.CreditsCharged > 0 {
			if _, err := l.users.GetByIDForUpdate(ctx, tx, gr.UserID); err != nil {
				return fmt.Errorf("lock user: %w", err)
			}
			if _, err := l.ledger.AppendTx(ctx, tx, gr.UserID, &gr.ID, models.LedgerTypeRefund, gr.CreditsCharged); err != nil {
				return err
			}
			l.ledger.InvalidateBalance(ctx, gr.UserID)
		}
		return nil
	})
}

// InvalidTransition implements execution.RequestService.
func (l *Lifecycle) InvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// withConflictRetry runs fn in a transaction, retrying the whole unit on
// serialization or deadlock failures. Any error rolls everything back; no
// partial state survives.
func (l *Lifecycle) withConflictRetry(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err := l.runInTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryableConflict(err) {
			return err
		}
		lastErr = err
		l.log.Warn("store conflict, retrying", "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("%w: %v", ErrStoreConflict, lastErr)
}

func (l *Lifecycle) runInTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isRetryableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure and deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
