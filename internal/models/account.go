package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositStatus tracks the lifecycle of a member's grant deposit.
type DepositStatus string

const (
	DepositScheduled DepositStatus = "SCHEDULED"
	DepositPending   DepositStatus = "PENDING"
	DepositPosted    DepositStatus = "POSTED"
)

// Rank orders statuses for monotonicity checks. SCHEDULED < PENDING < POSTED.
func (s DepositStatus) Rank() int {
	switch s {
	case DepositScheduled:
		return 0
	case DepositPending:
		return 1
	case DepositPosted:
		return 2
	}
	return -1
}

// Valid reports whether the status is one of the known lifecycle states.
func (s DepositStatus) Valid() bool {
	return s.Rank() >= 0
}

// Account represents a member account row
type Account struct {
	ID                int             `json:"id" db:"id"`
	FullName          string          `json:"fullName" db:"full_name"`
	Email             string          `json:"email" db:"email"`
	PasswordHash      string          `json:"-" db:"password_hash"`
	DOB               string          `json:"dob,omitempty" db:"dob"`
	Address           string          `json:"address,omitempty" db:"address"`
	SSNLast4          string          `json:"ssnLast4,omitempty" db:"ssn_last4"`
	GrantAmount       decimal.Decimal `json:"grantAmount" db:"grant_amount"`
	AccountLast4      string          `json:"accountLast4" db:"account_last4"`
	ApplicationNumber string          `json:"applicationNumber" db:"application_number"`
	DepositStatus     DepositStatus   `json:"depositStatus" db:"deposit_status"`
	PendingAt         time.Time       `json:"pendingAt" db:"pending_at"`
	AvailableAt       time.Time       `json:"availableAt" db:"available_at"`
	Notified          bool            `json:"-" db:"notified"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}
