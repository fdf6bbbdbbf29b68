package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrNotFound       = errors.New("not found")
)

// Validation
var (
	ErrSameAccount       = errors.New("cannot transfer to the same account")
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")
	ErrAmountPrecision   = errors.New("amount must have at most two decimal places")
	ErrInvalidStatus     = errors.New("invalid transaction status")
	ErrAccountRequired   = errors.New("account number required")
)

// Business rules
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTerminalStatus      = errors.New("transaction is already in a terminal status")
	ErrWalletInactive      = errors.New("wallet is not active")
)

// Resources
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrDuplicateResource   = errors.New("resource already exists")
)

// Bus
var (
	ErrDeliveryFailed = errors.New("event delivery failed after retries")
	ErrLockTimeout    = errors.New("timed out waiting for account lock")
)

const pgUniqueViolation = "23505"

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return "unknown"
}

// IsDuplicate reports whether err is the duplicate sentinel or a postgres
// unique-constraint violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateResource) || ParsePGErrorCode(err) == pgUniqueViolation
}

// IsValidation reports whether err maps to a rejected request (HTTP 400) at the
// synchronous boundary.
func IsValidation(err error) bool {
	return errors.Is(err, ErrSameAccount) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrAmountPrecision) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrAccountRequired) ||
		errors.Is(err, ErrInvalidRequest)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrWalletNotFound)
}
