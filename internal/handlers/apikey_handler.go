package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumagen/backend/internal/middleware"
	"github.com/lumagen/backend/internal/models"
)

// APIKeyStore is the repository surface for key management.
type APIKeyStore interface {
	Create(ctx context.Context, k *models.APIKey) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	Deactivate(ctx context.Context, userID, id uuid.UUID) error
}

// APIKeyHandler serves /api/v1/api-keys. The raw key is shown once, at
// creation; only its SHA-256 hash is stored.
type APIKeyHandler struct {
	Keys   APIKeyStore
	Logger *slog.Logger
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authenticated user")
		return
	}
	keys, err := h.Keys.ListByUserID(r.Context(), user.ID)
	if err != nil {
		h.Logger.Error("list api keys", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list api keys")
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authenticated user")
		return
	}

	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		h.Logger.Error("generate api key", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "key generation failed")
		return
	}
	rawKey := middleware.APIKeyPrefix + hex.EncodeToString(rawBytes)

	k := &models.APIKey{
		ID:        uuid.New(),
		UserID:    user.ID,
		KeyHash:   middleware.HashAPIKey(rawKey),
		KeyPrefix: rawKey[:12],
		IsActive:  true,
	}
	if err := h.Keys.Create(r.Context(), k); err != nil {
		h.Logger.Error("create api key", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not create api key")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         k.ID,
		"key_prefix": k.KeyPrefix,
		"is_active":  k.IsActive,
		"raw_key":    rawKey,
	})
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authenticated user")
		return
	}
	keyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid api key id")
		return
	}
	if err := h.Keys.Deactivate(r.Context(), user.ID, keyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "api key not found")
			return
		}
		h.Logger.Error("revoke api key", "key_id", keyID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not revoke api key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
