package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"banking-settlement/internal/domain"
	"banking-settlement/internal/xerrors"
)

// WalletRepo persists wallets and settlement markers. A settlement marker row
// is the durable record that a transaction id has been applied; ApplyTransfer
// and RecordFailedTransfer write it in the same database transaction as any
// balance change, which is what makes redelivered transfers idempotent.
type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func (r *WalletRepo) GetWallet(ctx context.Context, accountNumber string) (*domain.Wallet, error) {
	query := `
		SELECT account_number, balance::text, currency, active, created_at, updated_at
		FROM wallets WHERE account_number = $1`
	w, err := scanWallet(r.pool.QueryRow(ctx, query, accountNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", xerrors.ErrWalletNotFound, accountNumber)
		}
		return nil, fmt.Errorf("failed to fetch wallet %s: %w", accountNumber, err)
	}
	return w, nil
}

func (r *WalletRepo) CreateWallet(ctx context.Context, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (account_number, balance, currency, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query,
		w.AccountNumber, w.Balance.StringFixed(2), w.Currency, w.Active, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if xerrors.IsDuplicate(err) {
			return fmt.Errorf("%w: wallet %s", xerrors.ErrDuplicateResource, w.AccountNumber)
		}
		return fmt.Errorf("failed to insert wallet: %w", err)
	}
	return nil
}

func (r *WalletRepo) ListWallets(ctx context.Context) ([]*domain.Wallet, error) {
	query := `
		SELECT account_number, balance::text, currency, active, created_at, updated_at
		FROM wallets ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	var out []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wallets: %w", err)
	}
	return out, nil
}

func (r *WalletRepo) Settlement(ctx context.Context, transactionID string) (*domain.SettledTransfer, error) {
	query := `
		SELECT transaction_id, from_account, to_account, amount::text, operation,
		       previous_balance::text, new_balance::text, reason, settled_at
		FROM settled_transfers WHERE transaction_id = $1`
	s, err := scanSettlement(r.pool.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch settlement %s: %w", transactionID, err)
	}
	return s, nil
}

// ApplyTransfer moves funds and writes the settlement marker atomically. Rows
// are locked in account-number order to stay deadlock-free against concurrent
// transfers touching the same accounts. The debit and credit are relative to
// the stored balance, with the debit guarded against overdraw, so two
// replicas settling different transactions on the same account cannot lose an
// update to a stale read. The balances recorded on s come from the applied
// debit, not the caller's snapshot.
func (r *WalletRepo) ApplyTransfer(ctx context.Context, s *domain.SettledTransfer) error {
	return r.withSettlementTx(ctx, s, func(tx pgx.Tx) error {
		first, second := s.FromAccount, s.ToAccount
		if second < first {
			first, second = second, first
		}
		lock := `SELECT account_number FROM wallets WHERE account_number = ANY($1) ORDER BY account_number FOR UPDATE`
		if _, err := tx.Exec(ctx, lock, []string{first, second}); err != nil {
			return fmt.Errorf("failed to lock wallet rows: %w", err)
		}

		amount := s.Amount.StringFixed(2)
		debit := `
			UPDATE wallets SET balance = balance - $2, updated_at = NOW()
			WHERE account_number = $1 AND balance >= $2
			RETURNING balance::text`
		var newFrom string
		if err := tx.QueryRow(ctx, debit, s.FromAccount, amount).Scan(&newFrom); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				var exists bool
				check := `SELECT EXISTS (SELECT 1 FROM wallets WHERE account_number = $1)`
				if perr := tx.QueryRow(ctx, check, s.FromAccount).Scan(&exists); perr != nil {
					return fmt.Errorf("failed to check wallet %s: %w", s.FromAccount, perr)
				}
				if !exists {
					return fmt.Errorf("%w: %s", xerrors.ErrWalletNotFound, s.FromAccount)
				}
				return fmt.Errorf("%w: account %s", xerrors.ErrInsufficientBalance, s.FromAccount)
			}
			return fmt.Errorf("failed to debit %s: %w", s.FromAccount, err)
		}

		balance, err := decimal.NewFromString(newFrom)
		if err != nil {
			return fmt.Errorf("invalid balance %q on wallet %s: %w", newFrom, s.FromAccount, err)
		}
		s.NewBalance = balance
		s.PreviousBalance = balance.Add(s.Amount)

		credit := `UPDATE wallets SET balance = balance + $2, updated_at = NOW() WHERE account_number = $1`
		if tag, err := tx.Exec(ctx, credit, s.ToAccount, amount); err != nil {
			return fmt.Errorf("failed to credit %s: %w", s.ToAccount, err)
		} else if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", xerrors.ErrWalletNotFound, s.ToAccount)
		}
		return nil
	})
}

// RecordFailedTransfer writes the marker for a rejected transfer. Balances
// are untouched; the marker alone stops redeliveries from re-evaluating.
func (r *WalletRepo) RecordFailedTransfer(ctx context.Context, s *domain.SettledTransfer) error {
	return r.withSettlementTx(ctx, s, func(pgx.Tx) error { return nil })
}

// withSettlementTx runs mutate plus the settlement-marker insert in one
// database transaction. The unique constraint on transaction_id is the last
// line of defense against two deliveries applying the same transfer.
func (r *WalletRepo) withSettlementTx(ctx context.Context, s *domain.SettledTransfer, mutate func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin settlement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := mutate(tx); err != nil {
		return err
	}

	insert := `
		INSERT INTO settled_transfers (transaction_id, from_account, to_account, amount, operation,
		                               previous_balance, new_balance, reason, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = tx.Exec(ctx, insert,
		s.TransactionID, s.FromAccount, s.ToAccount, s.Amount.StringFixed(2), s.Operation,
		s.PreviousBalance.StringFixed(2), s.NewBalance.StringFixed(2), s.Reason, s.SettledAt)
	if err != nil {
		if xerrors.IsDuplicate(err) {
			return fmt.Errorf("%w: settlement %s", xerrors.ErrDuplicateResource, s.TransactionID)
		}
		return fmt.Errorf("failed to record settlement %s: %w", s.TransactionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit settlement %s: %w", s.TransactionID, err)
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		w       domain.Wallet
		balance string
	)
	if err := row.Scan(&w.AccountNumber, &balance, &w.Currency, &w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("invalid balance %q on wallet %s: %w", balance, w.AccountNumber, err)
	}
	w.Balance = parsed
	return &w, nil
}

func scanSettlement(row pgx.Row) (*domain.SettledTransfer, error) {
	var (
		s                    domain.SettledTransfer
		amount, prev, newBal string
	)
	err := row.Scan(&s.TransactionID, &s.FromAccount, &s.ToAccount, &amount, &s.Operation,
		&prev, &newBal, &s.Reason, &s.SettledAt)
	if err != nil {
		return nil, err
	}
	if s.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid settlement amount %q: %w", amount, err)
	}
	if s.PreviousBalance, err = decimal.NewFromString(prev); err != nil {
		return nil, fmt.Errorf("invalid settlement balance %q: %w", prev, err)
	}
	if s.NewBalance, err = decimal.NewFromString(newBal); err != nil {
		return nil, fmt.Errorf("invalid settlement balance %q: %w", newBal, err)
	}
	return &s, nil
}
