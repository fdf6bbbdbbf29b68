package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"banking-settlement/internal/domain"
	"banking-settlement/internal/events"
	"banking-settlement/internal/xerrors"
	"banking-settlement/pkg/utils"
)

// Metrics. Initiated minus finalized is the fleet's count of transactions
// still PENDING, which is what the stuck-transfer alert watches.
var (
	transactionsInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_initiated_total",
			Help: "Total number of transactions recorded as PENDING",
		},
	)

	transactionsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transactions_finalized_total",
			Help: "Total number of transactions driven to a terminal status",
		},
		[]string{"status"},
	)
)

// Repository is the register's persistence surface.
type Repository interface {
	Create(ctx context.Context, t *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	History(ctx context.Context, accountNumber string) ([]*domain.Transaction, error)
	ListByStatus(ctx context.Context, status domain.TransactionStatus) ([]*domain.Transaction, error)

	// UpdateStatus transitions id to status only while the row is still
	// PENDING and returns the updated row. ErrTerminalStatus when the guard
	// loses, ErrTransactionNotFound when id is unknown.
	UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error)
}

// Service owns the transaction record and its PENDING -> {SUCCESS|FAILED}
// state machine. It is the transfer's source of truth: settlement outcome
// events from the ledger drive the terminal transition (the saga's closing
// step), and terminal records reject any further update.
type Service struct {
	repo Repository
	bus  events.Publisher
	now  func() time.Time
	log  *zap.Logger
}

func New(repo Repository, bus events.Publisher, logger *zap.Logger) *Service {
	return &Service{repo: repo, bus: bus, now: time.Now, log: logger}
}

// Initiate validates the request, records a PENDING transaction and publishes
// transaction.initiated. When the publish retry budget is exhausted the
// transaction is finalized FAILED locally so it cannot dangle PENDING with no
// event in flight, and the delivery error surfaces to the caller.
func (s *Service) Initiate(ctx context.Context, fromAccount, toAccount string, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	if err := domain.ValidateTransfer(fromAccount, toAccount, amount); err != nil {
		return nil, err
	}

	t := &domain.Transaction{
		ID:          utils.NewTransactionID(),
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		Amount:      amount,
		Status:      domain.StatusPending,
		Description: description,
		CreatedAt:   s.now().UTC(),
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	transactionsInitiated.Inc()

	s.log.Info("transaction initiated",
		zap.String("transaction", t.ID),
		zap.String("from", fromAccount),
		zap.String("to", toAccount),
		zap.String("amount", amount.StringFixed(2)))

	if err := s.bus.Publish(ctx, events.TopicTransactionInitiated, t.ID, s.toEvent(t)); err != nil {
		s.log.Error("initiation event undeliverable, failing transaction",
			zap.String("transaction", t.ID), zap.Error(err))
		if failed, ferr := s.repo.UpdateStatus(ctx, t.ID, domain.StatusFailed); ferr == nil {
			t = failed
			transactionsFinalized.WithLabelValues(string(domain.StatusFailed)).Inc()
		}
		return t, err
	}
	return t, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.repo.GetByID(ctx, id)
}

// History lists transactions where the account is either leg, newest first.
func (s *Service) History(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	if accountNumber == "" {
		return nil, xerrors.ErrAccountRequired
	}
	return s.repo.History(ctx, accountNumber)
}

func (s *Service) Pending(ctx context.Context) ([]*domain.Transaction, error) {
	return s.repo.ListByStatus(ctx, domain.StatusPending)
}

// UpdateStatus finalizes a PENDING transaction and publishes the matching
// terminal event. Updating an already-terminal transaction is rejected, never
// silently overwritten, which is what makes redelivered outcomes harmless.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error) {
	if !status.Terminal() {
		return nil, xerrors.ErrInvalidStatus
	}

	t, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	transactionsFinalized.WithLabelValues(string(status)).Inc()

	topic := events.TopicTransactionSuccess
	if status == domain.StatusFailed {
		topic = events.TopicTransactionFailed
	}
	s.log.Info("transaction finalized",
		zap.String("transaction", t.ID), zap.String("status", string(status)))

	if err := s.bus.Publish(ctx, topic, t.ID, s.toEvent(t)); err != nil {
		// Status is durably terminal; the undelivered event is the caller's
		// signal to retry (redelivery republishes the outcome upstream).
		return t, err
	}
	return t, nil
}

// HandleWalletOutcome is the saga closer: the ledger's wallet.updated event is
// the authoritative trigger for the terminal transition.
func (s *Service) HandleWalletOutcome(ctx context.Context, event events.WalletUpdateEvent) error {
	var status domain.TransactionStatus
	switch event.Operation {
	case domain.OpTransfer:
		status = domain.StatusSuccess
	case domain.OpTransferFailed:
		status = domain.StatusFailed
	default:
		return fmt.Errorf("%w: unknown wallet operation %q", xerrors.ErrInvalidRequest, event.Operation)
	}

	_, err := s.UpdateStatus(ctx, event.TransactionID, status)
	if errors.Is(err, xerrors.ErrTerminalStatus) {
		// Redelivered outcome for a transaction already finalized.
		s.log.Info("ignoring outcome for terminal transaction",
			zap.String("transaction", event.TransactionID))
		return nil
	}
	return err
}

func (s *Service) toEvent(t *domain.Transaction) events.TransactionEvent {
	return events.TransactionEvent{
		TransactionID: t.ID,
		FromAccount:   t.FromAccount,
		ToAccount:     t.ToAccount,
		Amount:        t.Amount,
		Status:        string(t.Status),
		Description:   t.Description,
		Timestamp:     t.UpdatedAt,
	}
}
