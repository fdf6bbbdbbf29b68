package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"banking-settlement/internal/domain"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Save(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	query := `
		INSERT INTO notifications (transaction_id, type, recipient, from_account, to_account, amount, message, sent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		n.TransactionID, string(n.Type), n.Recipient, n.FromAccount, n.ToAccount,
		n.Amount.StringFixed(2), n.Message, n.Sent, n.CreatedAt).Scan(&n.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}
	return n, nil
}

func (r *NotificationRepo) ListByRecipient(ctx context.Context, recipient string) ([]*domain.Notification, error) {
	return r.list(ctx, `
		SELECT id, transaction_id, type, recipient, from_account, to_account, amount::text, message, sent, created_at
		FROM notifications WHERE recipient = $1 ORDER BY created_at DESC`, recipient)
}

func (r *NotificationRepo) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Notification, error) {
	return r.list(ctx, `
		SELECT id, transaction_id, type, recipient, from_account, to_account, amount::text, message, sent, created_at
		FROM notifications WHERE transaction_id = $1 ORDER BY created_at DESC`, transactionID)
}

func (r *NotificationRepo) ListAll(ctx context.Context) ([]*domain.Notification, error) {
	return r.list(ctx, `
		SELECT id, transaction_id, type, recipient, from_account, to_account, amount::text, message, sent, created_at
		FROM notifications ORDER BY created_at DESC`)
}

func (r *NotificationRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	return out, nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n      domain.Notification
		amount string
		ntype  string
	)
	err := row.Scan(&n.ID, &n.TransactionID, &ntype, &n.Recipient, &n.FromAccount, &n.ToAccount,
		&amount, &n.Message, &n.Sent, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q on notification %d: %w", amount, n.ID, err)
	}
	n.Amount = parsed
	n.Type = domain.NotificationType(ntype)
	return &n, nil
}
