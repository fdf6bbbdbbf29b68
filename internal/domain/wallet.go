package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds the balance for one account. Balances only change through the
// ledger's settlement path; the invariant is balance >= 0 at all times.
type Wallet struct {
	AccountNumber string          `json:"accountNumber"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
