package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type NotificationType string

const (
	NotificationSuccess    NotificationType = "SUCCESS"
	NotificationFraudAlert NotificationType = "FRAUD_ALERT"
	NotificationFailure    NotificationType = "FAILURE"
)

// Notification is one user-facing message produced by the dispatcher. A single
// transaction may produce several (sender leg, receiver leg, alert). Sent
// reflects the delivery sink outcome only; the record is stored either way.
type Notification struct {
	ID            int64            `json:"id"`
	TransactionID string           `json:"transactionId"`
	Type          NotificationType `json:"type"`
	Recipient     string           `json:"recipient"`
	FromAccount   string           `json:"fromAccount"`
	ToAccount     string           `json:"toAccount"`
	Amount        decimal.Decimal  `json:"amount"`
	Message       string           `json:"message"`
	Sent          bool             `json:"sent"`
	CreatedAt     time.Time        `json:"createdAt"`
}
