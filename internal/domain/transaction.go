package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"banking-settlement/internal/xerrors"
)

type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

// Terminal reports whether no further status transition is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch TransactionStatus(strings.ToUpper(s)) {
	case StatusPending:
		return StatusPending, nil
	case StatusSuccess:
		return StatusSuccess, nil
	case StatusFailed:
		return StatusFailed, nil
	default:
		return "", xerrors.ErrInvalidStatus
	}
}

// Transaction is the transfer's source of truth. It is created PENDING, moves
// exactly once to SUCCESS or FAILED, and is never deleted.
type Transaction struct {
	ID          string            `json:"id"`
	FromAccount string            `json:"fromAccount"`
	ToAccount   string            `json:"toAccount"`
	Amount      decimal.Decimal   `json:"amount"`
	Status      TransactionStatus `json:"status"`
	Description string            `json:"description,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ValidateTransfer checks the invariants shared by every transfer request:
// distinct accounts (case-insensitive) and a positive amount with at most two
// decimal places.
func ValidateTransfer(fromAccount, toAccount string, amount decimal.Decimal) error {
	if fromAccount == "" || toAccount == "" {
		return xerrors.ErrAccountRequired
	}
	if strings.EqualFold(fromAccount, toAccount) {
		return xerrors.ErrSameAccount
	}
	if amount.Sign() <= 0 {
		return xerrors.ErrNonPositiveAmount
	}
	if amount.Exponent() < -2 {
		return xerrors.ErrAmountPrecision
	}
	return nil
}
