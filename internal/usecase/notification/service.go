package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"banking-settlement/internal/domain"
	"banking-settlement/internal/events"
	"banking-settlement/pkg/notifier"
)

type Repository interface {
	Save(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	ListByRecipient(ctx context.Context, recipient string) ([]*domain.Notification, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Notification, error)
	ListAll(ctx context.Context) ([]*domain.Notification, error)
}

// Service turns terminal transaction events and fraud alerts into
// per-recipient notification records. The sink may fail without consequence
// for the record: persistence is the priority and Sent just reports what the
// sink managed.
type Service struct {
	repo Repository
	sink notifier.Sink
	now  func() time.Time
	log  *zap.Logger
}

func New(repo Repository, sink notifier.Sink, logger *zap.Logger) *Service {
	return &Service{repo: repo, sink: sink, now: time.Now, log: logger}
}

// HandleTransactionSuccess records both legs of a completed transfer: a
// "sent" message for the source and a "received" message for the destination.
func (s *Service) HandleTransactionSuccess(ctx context.Context, event events.TransactionEvent) error {
	sender := &domain.Notification{
		TransactionID: event.TransactionID,
		Type:          domain.NotificationSuccess,
		Recipient:     event.FromAccount,
		FromAccount:   event.FromAccount,
		ToAccount:     event.ToAccount,
		Amount:        event.Amount,
		Message: fmt.Sprintf("Payment of ₹%s sent successfully to %s",
			event.Amount.StringFixed(2), event.ToAccount),
		CreatedAt: s.now().UTC(),
	}
	receiver := &domain.Notification{
		TransactionID: event.TransactionID,
		Type:          domain.NotificationSuccess,
		Recipient:     event.ToAccount,
		FromAccount:   event.FromAccount,
		ToAccount:     event.ToAccount,
		Amount:        event.Amount,
		Message: fmt.Sprintf("You received ₹%s from %s",
			event.Amount.StringFixed(2), event.FromAccount),
		CreatedAt: s.now().UTC(),
	}

	if err := s.dispatch(ctx, sender); err != nil {
		return err
	}
	return s.dispatch(ctx, receiver)
}

// HandleTransactionFailed notifies the sender that settlement did not happen.
func (s *Service) HandleTransactionFailed(ctx context.Context, event events.TransactionEvent) error {
	n := &domain.Notification{
		TransactionID: event.TransactionID,
		Type:          domain.NotificationFailure,
		Recipient:     event.FromAccount,
		FromAccount:   event.FromAccount,
		ToAccount:     event.ToAccount,
		Amount:        event.Amount,
		Message: fmt.Sprintf("Payment of ₹%s to %s failed",
			event.Amount.StringFixed(2), event.ToAccount),
		CreatedAt: s.now().UTC(),
	}
	return s.dispatch(ctx, n)
}

// HandleFraudAlert records one alert notification for the source account.
func (s *Service) HandleFraudAlert(ctx context.Context, event events.FraudAlertEvent) error {
	n := &domain.Notification{
		TransactionID: event.TransactionID,
		Type:          domain.NotificationFraudAlert,
		Recipient:     event.FromAccount,
		FromAccount:   event.FromAccount,
		ToAccount:     event.ToAccount,
		Amount:        event.Amount,
		Message: fmt.Sprintf("FRAUD ALERT: Suspicious transaction of ₹%s detected. Risk Score: %d. Reason: %s",
			event.Amount.StringFixed(2), event.RiskScore, event.Reason),
		CreatedAt: s.now().UTC(),
	}
	return s.dispatch(ctx, n)
}

// dispatch sends through the sink first, then persists the record with
// whatever delivery outcome the sink produced. Only the persistence failure
// bubbles up for retry; a dead sink must not lose the record.
func (s *Service) dispatch(ctx context.Context, n *domain.Notification) error {
	if err := s.sink.Send(ctx, n); err != nil {
		s.log.Warn("notification sink failed",
			zap.String("transaction", n.TransactionID),
			zap.String("recipient", n.Recipient),
			zap.Error(err))
		n.Sent = false
	} else {
		n.Sent = true
	}

	if _, err := s.repo.Save(ctx, n); err != nil {
		return fmt.Errorf("failed to store notification for %s: %w", n.TransactionID, err)
	}
	return nil
}

func (s *Service) ByRecipient(ctx context.Context, recipient string) ([]*domain.Notification, error) {
	return s.repo.ListByRecipient(ctx, recipient)
}

func (s *Service) ByTransaction(ctx context.Context, transactionID string) ([]*domain.Notification, error) {
	return s.repo.ListByTransaction(ctx, transactionID)
}

func (s *Service) All(ctx context.Context) ([]*domain.Notification, error) {
	return s.repo.ListAll(ctx)
}
