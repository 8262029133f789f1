package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/lumagen/backend/internal/ledger"
	"github.com/lumagen/backend/internal/middleware"
	"github.com/lumagen/backend/internal/models"
	"github.com/lumagen/backend/internal/repository"
	"github.com/lumagen/backend/internal/services"
)

// GenerationService is the lifecycle surface the handler needs.
type GenerationService interface {
	Submit(ctx context.Context, userID uuid.UUID, params services.SubmitParams) (*models.GenerationRequest, error)
	Cancel(ctx context.Context, userID, requestID uuid.UUID) (int, error)
	List(ctx context.Context, userID uuid.UUID, filters repository.RequestFilters, limit, offset int) ([]*models.GenerationRequest, int, error)
	GetByID(ctx context.Context, userID, requestID uuid.UUID) (*services.RequestDetail, error)
}

// GenerationHandler serves the /api/v1 generation endpoints.
type GenerationHandler struct {
	Lifecycle GenerationService
	Logger    *slog.Logger
}

// --- POST /api/v1/generate ---

type generateRequest struct {
	ModelID        string          `json:"model_id"`
	Prompt         string          `json:"prompt"`
	NegativePrompt string          `json:"negative_prompt"`
	AspectRatio    string          `json:"aspect_ratio"`
	NumOutputs     int             `json:"num_outputs"`
	StylePreset    string          `json:"style_preset"`
	Seed           *int64          `json:"seed"`
	Quality        string          `json:"quality"`
	Parameters     json.RawMessage `json:"api_specific_parameters"`
}

type generateResponse struct {
	RequestID      string `json:"request_id"`
	Status         string `json:"status"`
	CreditsCharged int    `json:"credits_charged"`
}

// Generate handles POST /api/v1/generate.
// Auth -> Quota (via middleware) -> price -> debit -> enqueue -> 202.
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authenticated user")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON")
		return
	}
	modelID, err := uuid.Parse(req.ModelID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid model_id")
		return
	}

	gr, err := h.Lifecycle.Submit(r.Context(), user.ID, services.SubmitParams{
		ModelID:        modelID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		AspectRatio:    req.AspectRatio,
		NumOutputs:     req.NumOutputs,
		StylePreset:    req.StylePreset,
		Seed:           req.Seed,
		Quality:        req.Quality,
		APIParameters:  req.Parameters,
	})
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, generateResponse{
		RequestID:      gr.ID.String(),
		Status:         gr.Status,
		CreditsCharged: gr.CreditsCharged,
	})
}

func (h *GenerationHandler) writeSubmitError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientCreditsError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error": map[string]any{
				"reason":    "insufficient_credits",
				"message":   insufficient.Error(),
				"required":  insufficient.Required,
				"available": insufficient.Available,
			},
		})
	case errors.Is(err, services.ErrInvalidModel):
		writeError(w, http.StatusBadRequest, "invalid_model", "unknown or inactive model")
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, services.ErrStoreConflict):
		writeError(w, http.StatusConflict, "conflict", "the operation conflicted with a concurrent one, retry")
	default:
		h.Logger.Error("submit generation request", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not submit request")
	}
}

// --- GET /api/v1/generation-requests ---

type paginationMeta struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListRequests handles GET /api/v1/generation-requests. Supports status
// and model_id filters plus limit/offset pagination.
func (h *GenerationHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authenticated user")
		return
	}

	q := r.URL.Query()
	filters := repository.RequestFilters{Status: q.Get("status")}
	if raw := q.Get("model_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid model_id")
			return
		}
		filters.ModelID = id
	}
	if filters.Status != "" && !validStatusFilter(filters.Status) {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid status filter")
		return
	}
	limit := intQuery(q.Get("limit"), 20)
	offset := intQuery(q.Get("offset"), 0)

	requests, total, err := h.Lifecycle.List(r.Context(), user.ID, filters, limit, offset)
	if err != nil {
		h.Logger.Error("list generation requests", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list requests")
		return
	}
	if requests == nil {
		requests = []*models.GenerationRequest{}
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": requests,
		"pagination": paginationMeta{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(requests) < total,
		},
	})
}

// --- GET /api/v1/generation-requests/{id} ---

func (h *GenerationHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authenticated user")
		return
	}
	requestID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid request id")
		return
	}

	detail, err := h.Lifecycle.GetByID(r.Context(), user.ID, requestID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "request not found")
			return
		}
		h.Logger.Error("get generation request", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load request")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// --- POST /api/v1/generation-requests/{id}/cancel ---

type cancelResponse struct {
	Status          string `json:"status"`
	RefundedCredits int    `json:"refunded_credits"`
}

func (h *GenerationHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing authenticated user")
		return
	}
	requestID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid request id")
		return
	}

	refunded, err := h.Lifecycle.Cancel(r.Context(), user.ID, requestID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "request not found")
		case errors.Is(err, services.ErrInvalidState):
			writeError(w, http.StatusBadRequest, "invalid_state", "request is already in a terminal state")
		case errors.Is(err, services.ErrStoreConflict):
			writeError(w, http.StatusConflict, "conflict", "the operation conflicted with a concurrent one, retry")
		default:
			h.Logger.Error("cancel generation request", "request_id", requestID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not cancel request")
		}
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{
		Status:          models.RequestStatusFailed,
		RefundedCredits: refunded,
	})
}

// --- helpers ---

func validStatusFilter(s string) bool {
	switch s {
	case models.RequestStatusPending, models.RequestStatusProcessing,
		models.RequestStatusCompleted, models.RequestStatusFailed:
		return true
	}
	return false
}

func intQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"reason": reason, "message": message},
	})
}
