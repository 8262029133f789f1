package models

import (
	"time"

	"github.com/google/uuid"
)

// Image is one generated output. UserID is denormalized from the owning
// request at write time and is never settable by callers.
type Image struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id"`
	UserID    uuid.UUID `json:"user_id"`
	URL       string    `json:"url"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Seed      *int64    `json:"seed,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
