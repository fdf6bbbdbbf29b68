package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet update operations carried in a settlement outcome.
const (
	OpTransfer       = "TRANSFER"
	OpTransferFailed = "TRANSFER_FAILED"
)

// SettledTransfer is the ledger's durable outcome for one transaction id. It
// doubles as the idempotency marker: once present, redelivery of the same
// initiation event returns this record instead of touching balances again.
type SettledTransfer struct {
	TransactionID   string          `json:"transactionId"`
	FromAccount     string          `json:"fromAccount"`
	ToAccount       string          `json:"toAccount"`
	Amount          decimal.Decimal `json:"amount"`
	Operation       string          `json:"operation"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	Reason          string          `json:"reason,omitempty"`
	SettledAt       time.Time       `json:"settledAt"`
}

// Succeeded reports whether funds actually moved.
func (s *SettledTransfer) Succeeded() bool {
	return s.Operation == OpTransfer
}
