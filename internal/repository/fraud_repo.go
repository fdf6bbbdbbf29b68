package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"banking-settlement/internal/domain"
)

// FraudRepo is the append-only store behind the scoring engine.
type FraudRepo struct {
	pool *pgxpool.Pool
}

func NewFraudRepo(pool *pgxpool.Pool) *FraudRepo {
	return &FraudRepo{pool: pool}
}

func (r *FraudRepo) Save(ctx context.Context, l *domain.FraudLog) (*domain.FraudLog, error) {
	query := `
		INSERT INTO fraud_logs (transaction_id, from_account, to_account, amount, risk_score, risk_level, reason, flagged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		l.TransactionID, l.FromAccount, l.ToAccount, l.Amount.StringFixed(2),
		l.RiskScore, string(l.RiskLevel), l.Reason, l.Flagged, l.CreatedAt).Scan(&l.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert fraud log: %w", err)
	}
	return l, nil
}

// CountRecentByFromAccount feeds the velocity rule: analyses already recorded
// for the source account since the window start.
func (r *FraudRepo) CountRecentByFromAccount(ctx context.Context, accountNumber string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM fraud_logs WHERE from_account = $1 AND created_at > $2`
	var count int64
	if err := r.pool.QueryRow(ctx, query, accountNumber, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent fraud logs: %w", err)
	}
	return count, nil
}

func (r *FraudRepo) ListFlagged(ctx context.Context) ([]*domain.FraudLog, error) {
	return r.list(ctx, `
		SELECT id, transaction_id, from_account, to_account, amount::text, risk_score, risk_level, reason, flagged, created_at
		FROM fraud_logs WHERE flagged ORDER BY created_at DESC`)
}

func (r *FraudRepo) ListByAccount(ctx context.Context, accountNumber string) ([]*domain.FraudLog, error) {
	return r.list(ctx, `
		SELECT id, transaction_id, from_account, to_account, amount::text, risk_score, risk_level, reason, flagged, created_at
		FROM fraud_logs WHERE from_account = $1 ORDER BY created_at DESC`, accountNumber)
}

func (r *FraudRepo) ListAll(ctx context.Context) ([]*domain.FraudLog, error) {
	return r.list(ctx, `
		SELECT id, transaction_id, from_account, to_account, amount::text, risk_score, risk_level, reason, flagged, created_at
		FROM fraud_logs ORDER BY created_at DESC`)
}

func (r *FraudRepo) list(ctx context.Context, query string, args ...any) ([]*domain.FraudLog, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fraud logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.FraudLog
	for rows.Next() {
		l, err := scanFraudLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fraud logs: %w", err)
	}
	return out, nil
}

func scanFraudLog(row pgx.Row) (*domain.FraudLog, error) {
	var (
		l      domain.FraudLog
		amount string
		level  string
	)
	err := row.Scan(&l.ID, &l.TransactionID, &l.FromAccount, &l.ToAccount, &amount,
		&l.RiskScore, &level, &l.Reason, &l.Flagged, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q on fraud log %d: %w", amount, l.ID, err)
	}
	l.Amount = parsed
	l.RiskLevel = domain.RiskLevel(level)
	return &l, nil
}
