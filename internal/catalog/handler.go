package catalog

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lumagen/backend/internal/models"
)

type RegisterModelRequest struct {
	Name           string  `json:"name"`
	Provider       string  `json:"provider"`
	EndpointURL    string  `json:"endpoint_url"`
	CostPerRequest float64 `json:"cost_per_request"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// ListModels handles GET /api/v1/models: every active model, priced in
// credits per output.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListModels(r.Context())
	if err != nil {
		h.log.Error("list models failed", "error", err)
		http.Error(w, `{"error":{"reason":"internal_error","message":"list models failed"}}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.AiModel{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"models": list})
}

// RegisterModel handles POST /api/v1/admin/models. Reached only through
// the admin-token middleware.
func (h *Handler) RegisterModel(w http.ResponseWriter, r *http.Request) {
	var req RegisterModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"reason":"validation_failed","message":"invalid JSON"}}`, http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Provider == "" || req.EndpointURL == "" {
		http.Error(w, `{"error":{"reason":"validation_failed","message":"name, provider and endpoint_url are required"}}`, http.StatusBadRequest)
		return
	}
	if req.CostPerRequest < 0 {
		http.Error(w, `{"error":{"reason":"validation_failed","message":"cost_per_request must be >= 0"}}`, http.StatusBadRequest)
		return
	}
	m, err := h.svc.RegisterModel(r.Context(), req.Name, req.Provider, req.EndpointURL, req.CostPerRequest)
	if err != nil {
		h.log.Error("register model failed", "error", err)
		http.Error(w, `{"error":{"reason":"internal_error","message":"register model failed"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(m)
}
