package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Generation request status enums. Completed and failed are terminal.
const (
	RequestStatusPending    = "pending"
	RequestStatusProcessing = "processing"
	RequestStatusCompleted  = "completed"
	RequestStatusFailed     = "failed"
)

// IsTerminalStatus reports whether no further transition is permitted.
func IsTerminalStatus(status string) bool {
	return status == RequestStatusCompleted || status == RequestStatusFailed
}

type GenerationRequest struct {
	ID                  uuid.UUID       `json:"id"`
	UserID              uuid.UUID       `json:"user_id"`
	ModelID             uuid.UUID       `json:"model_id"`
	Prompt              string          `json:"prompt"`
	NegativePrompt      string          `json:"negative_prompt,omitempty"`
	AspectRatio         string          `json:"aspect_ratio"`
	NumOutputs          int             `json:"num_outputs"`
	StylePreset         string          `json:"style_preset,omitempty"`
	Seed                *int64          `json:"seed,omitempty"`
	Quality             string          `json:"quality,omitempty"`
	APIParameters       json.RawMessage `json:"api_specific_parameters,omitempty"`
	Status              string          `json:"status"`
	CreditsCharged      int             `json:"credits_charged"`
	ErrorMessage        *string         `json:"error_message,omitempty"`
	RequestedAt         time.Time       `json:"requested_at"`
	ProcessingStartedAt *time.Time      `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}
