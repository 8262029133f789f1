package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription tier enums. Tiers gate the daily request quota, not pricing.
const (
	TierFree    = "free"
	TierStarter = "starter"
	TierPro     = "pro"
)

// User identity. Balance is derived from the ledger; there is deliberately
// no balance column here.
type User struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	DisplayName      string    `json:"display_name"`
	SubscriptionTier string    `json:"subscription_tier"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
