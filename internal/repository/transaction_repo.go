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

// TransactionRepo persists the transaction register in postgres.
type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func (r *TransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, from_account, to_account, amount, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		t.ID, t.FromAccount, t.ToAccount, t.Amount.StringFixed(2),
		string(t.Status), t.Description, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if xerrors.IsDuplicate(err) {
			return fmt.Errorf("%w: transaction %s", xerrors.ErrDuplicateResource, t.ID)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `
		SELECT id, from_account, to_account, amount::text, status, description, created_at, updated_at
		FROM transactions WHERE id = $1`
	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", id, err)
	}
	return t, nil
}

func (r *TransactionRepo) History(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	query := `
		SELECT id, from_account, to_account, amount::text, status, description, created_at, updated_at
		FROM transactions
		WHERE from_account = $1 OR to_account = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", accountNumber, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *TransactionRepo) ListByStatus(ctx context.Context, status domain.TransactionStatus) ([]*domain.Transaction, error) {
	query := `
		SELECT id, from_account, to_account, amount::text, status, description, created_at, updated_at
		FROM transactions
		WHERE status = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by status: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// UpdateStatus finalizes a PENDING transaction. The status guard lives in the
// WHERE clause so concurrent finalizations cannot both win; a zero-row update
// is then disambiguated into terminal-status vs unknown-id.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error) {
	query := `
		UPDATE transactions
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING id, from_account, to_account, amount::text, status, description, created_at, updated_at`
	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id, string(status)))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update transaction %s: %w", id, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check transaction %s: %w", id, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrTerminalStatus, id)
	}
	return nil, xerrors.ErrTransactionNotFound
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t      domain.Transaction
		amount string
		status string
	)
	if err := row.Scan(&t.ID, &t.FromAccount, &t.ToAccount, &amount, &status, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q on transaction %s: %w", amount, t.ID, err)
	}
	t.Amount = parsed
	t.Status = domain.TransactionStatus(status)
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return out, nil
}
