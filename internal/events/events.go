package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ================================
// TOPICS
// ================================

// All settlement topics are keyed by transaction id. The bus guarantees
// ordered, at-least-once delivery per key within one topic and nothing across
// topics, so every consumer must tolerate duplicates.
const (
	TopicTransactionInitiated = "transaction.initiated"
	TopicTransactionSuccess   = "transaction.success"
	TopicTransactionFailed    = "transaction.failed"
	TopicWalletUpdated        = "wallet.updated"
	TopicFraudAlert           = "fraud.alert"

	// DeadLetterSuffix is appended to a topic name when a consumer exhausts
	// its retry budget on a message.
	DeadLetterSuffix = ".dlq"
)

// ================================
// EVENT MESSAGES
// ================================

type TransactionEvent struct {
	TransactionID string          `json:"transactionId"`
	FromAccount   string          `json:"fromAccount"`
	ToAccount     string          `json:"toAccount"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Description   string          `json:"description,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

type WalletUpdateEvent struct {
	AccountNumber   string          `json:"accountNumber"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	Amount          decimal.Decimal `json:"amount"`
	Operation       string          `json:"operation"`
	TransactionID   string          `json:"transactionId"`
	Reason          string          `json:"reason,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

type FraudAlertEvent struct {
	TransactionID string          `json:"transactionId"`
	FromAccount   string          `json:"fromAccount"`
	ToAccount     string          `json:"toAccount"`
	Amount        decimal.Decimal `json:"amount"`
	RiskScore     int             `json:"riskScore"`
	Reason        string          `json:"reason"`
	Timestamp     time.Time       `json:"timestamp"`
}

// ================================
// BUS CONTRACT
// ================================

// Publisher publishes one JSON-encoded payload to a topic under an ordering
// key. Implementations retry internally; a returned error means the retry
// budget is exhausted and the event was not delivered.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// Message is one delivered bus record.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Partition int32
	Offset    int64
}

// Handler processes one delivered message. Returning an error requests a
// retry; after the consumer's retry budget the message goes to the topic's
// dead-letter queue.
type Handler func(ctx context.Context, msg Message) error
