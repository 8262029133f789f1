package models

import (
	"time"

	"github.com/google/uuid"
)

// AiModel is a catalog row for one generation model. CostPerRequest is the
// per-output price in credits and may be fractional; pricing rounds up.
type AiModel struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Provider       string    `json:"provider"`
	EndpointURL    string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	CostPerRequest float64   `json:"cost_per_request"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
