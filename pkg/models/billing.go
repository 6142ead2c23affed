package models

import (
	"database/sql"
	"time"
)

// Transaction lifecycle statuses. The payment flag, not the status, is the
// compare-and-set that guards crediting; status exists for reporting and the
// expiry sweep.
const (
	TransactionPending  = "pending"
	TransactionCredited = "credited"
	TransactionExpired  = "expired"
)

// CreditTransaction is one purchase intent: plan, price and credit amounts
// snapshotted at creation, plus the provider reference recorded when the
// checkout session is opened.
type CreditTransaction struct {
	ID          string         `json:"id" db:"id"`
	UserID      string         `json:"user_id" db:"user_id"`
	Plan        string         `json:"plan" db:"plan"`
	Credits     int64          `json:"credits" db:"credits"`
	AmountCents int64          `json:"amount_cents" db:"amount_cents"`
	Currency    string         `json:"currency" db:"currency"`
	Provider    sql.NullString `json:"provider,omitempty" db:"provider"`
	ProviderRef sql.NullString `json:"provider_ref,omitempty" db:"provider_ref"`
	Payment     bool           `json:"payment" db:"payment"`
	Status      string         `json:"status" db:"status"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// CreditApplication records a single applied credit. Its primary key on
// transaction_id is the idempotency key for the credit step.
type CreditApplication struct {
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	Credits       int64     `json:"credits" db:"credits"`
	BalanceAfter  int64     `json:"balance_after" db:"balance_after"`
	AppliedAt     time.Time `json:"applied_at" db:"applied_at"`
}

// User is the balance-bearing account record. Registration and profile
// management belong to the external account service; Bursar only reads the
// row and increments credit_balance.
type User struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email" db:"email"`
	CreditBalance int64     `json:"credit_balance" db:"credit_balance"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
