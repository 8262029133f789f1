package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger transaction_type enums. Consumption debits are negative amounts,
// everything else credits the balance.
const (
	LedgerTypePurchase    = "purchase"
	LedgerTypeConsumption = "consumption"
	LedgerTypeRefund      = "refund"
	LedgerTypeBonus       = "bonus"
)

// LedgerEntry is one immutable balance change. BalanceAfter snapshots the
// running balance immediately after this entry; the chain of BalanceAfter
// values is the sole source of truth for a user's balance.
type LedgerEntry struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	RequestID       *uuid.UUID `json:"request_id,omitempty"`
	TransactionType string     `json:"transaction_type"`
	Amount          int        `json:"amount"`
	BalanceAfter    int        `json:"balance_after"`
	CreatedAt       time.Time  `json:"created_at"`
}
