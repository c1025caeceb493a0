package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerStatus is the settlement status of a ledger entry.
type LedgerStatus string

const (
	LedgerPending   LedgerStatus = "PENDING"
	LedgerCompleted LedgerStatus = "COMPLETED"
)

// LedgerEntry records a deposit against a member account. Exactly one entry
// exists per account; it is created with the account and completed when the
// deposit posts.
type LedgerEntry struct {
	ID          int             `json:"id" db:"id"`
	AccountID   int             `json:"account_id" db:"account_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Status      LedgerStatus    `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}
