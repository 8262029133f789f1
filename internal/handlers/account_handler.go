package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/lumagen/backend/internal/middleware"
	"github.com/lumagen/backend/internal/models"
	"github.com/lumagen/backend/internal/services"
)

// BalanceReader resolves a user's current credit balance and history.
type BalanceReader interface {
	CurrentBalance(ctx context.Context, userID uuid.UUID) (int, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error)
}

// CreditGranter appends purchase/bonus entries on behalf of an operator.
type CreditGranter interface {
	GrantCredits(ctx context.Context, userID uuid.UUID, txType string, amount int) (*models.LedgerEntry, error)
}

// AccountHandler serves the account and credit-ledger endpoints.
type AccountHandler struct {
	Ledger  BalanceReader
	Granter CreditGranter
	Logger  *slog.Logger
}

type accountResponse struct {
	User    *models.User `json:"user"`
	Balance int          `json:"credit_balance"`
}

// Me handles GET /api/v1/account/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authenticated user")
		return
	}
	balance, err := h.Ledger.CurrentBalance(r.Context(), user.ID)
	if err != nil {
		h.Logger.Error("read balance", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not read balance")
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{User: user, Balance: balance})
}

// CreditLedger handles GET /api/v1/credit-ledger: the user's full transaction
// history, newest first, each entry carrying its running balance.
func (h *AccountHandler) CreditLedger(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authenticated user")
		return
	}
	entries, err := h.Ledger.ListForUser(r.Context(), user.ID)
	if err != nil {
		h.Logger.Error("list ledger entries", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list transactions")
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

// --- POST /api/v1/credits/grant (admin token) ---

type grantRequest struct {
	UserID          string `json:"user_id"`
	TransactionType string `json:"transaction_type"`
	Amount          int    `json:"amount"`
}

func (h *AccountHandler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid user_id")
		return
	}
	if req.TransactionType == "" {
		req.TransactionType = models.LedgerTypePurchase
	}

	entry, err := h.Granter.GrantCredits(r.Context(), userID, req.TransactionType, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		case errors.Is(err, services.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "user not found")
		default:
			h.Logger.Error("grant credits", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not grant credits")
		}
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
