package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"banking-settlement/internal/domain"
	"banking-settlement/internal/events"
)

type fakeRepo struct {
	mu      sync.Mutex
	stored  []*domain.Notification
	saveErr error
}

func (f *fakeRepo) Save(_ context.Context, n *domain.Notification) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	copied := *n
	copied.ID = int64(len(f.stored) + 1)
	f.stored = append(f.stored, &copied)
	return &copied, nil
}

func (f *fakeRepo) ListByRecipient(_ context.Context, recipient string) ([]*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Notification
	for _, n := range f.stored {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListByTransaction(_ context.Context, transactionID string) ([]*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Notification
	for _, n := range f.stored {
		if n.TransactionID == transactionID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListAll(context.Context) ([]*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Notification(nil), f.stored...), nil
}

type fakeSink struct {
	mu   sync.Mutex
	sent []*domain.Notification
	err  error
}

func (f *fakeSink) Send(_ context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func successEvent() events.TransactionEvent {
	return events.TransactionEvent{
		TransactionID: "TXN-1",
		FromAccount:   "ACC-A",
		ToAccount:     "ACC-B",
		Amount:        decimal.RequireFromString("250.00"),
		Status:        "SUCCESS",
	}
}

func TestHandleTransactionSuccessRecordsBothLegs(t *testing.T) {
	repo := &fakeRepo{}
	sink := &fakeSink{}
	svc := New(repo, sink, zap.NewNop())

	if err := svc.HandleTransactionSuccess(context.Background(), successEvent()); err != nil {
		t.Fatalf("HandleTransactionSuccess: %v", err)
	}

	all, _ := svc.All(context.Background())
	if len(all) != 2 {
		t.Fatalf("notifications = %d, want 2 (sender and receiver)", len(all))
	}

	senderSide, _ := svc.ByRecipient(context.Background(), "ACC-A")
	if len(senderSide) != 1 {
		t.Fatalf("sender notifications = %d, want 1", len(senderSide))
	}
	if !strings.Contains(senderSide[0].Message, "sent successfully to ACC-B") {
		t.Fatalf("sender message = %q", senderSide[0].Message)
	}
	if !senderSide[0].Sent {
		t.Fatal("sink delivered, Sent should be true")
	}

	receiverSide, _ := svc.ByRecipient(context.Background(), "ACC-B")
	if len(receiverSide) != 1 {
		t.Fatalf("receiver notifications = %d, want 1", len(receiverSide))
	}
	if !strings.Contains(receiverSide[0].Message, "received ₹250.00 from ACC-A") {
		t.Fatalf("receiver message = %q", receiverSide[0].Message)
	}
	if len(sink.sent) != 2 {
		t.Fatalf("sink deliveries = %d, want 2", len(sink.sent))
	}
}

func TestHandleTransactionFailedNotifiesSenderOnly(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo, &fakeSink{}, zap.NewNop())

	if err := svc.HandleTransactionFailed(context.Background(), successEvent()); err != nil {
		t.Fatalf("HandleTransactionFailed: %v", err)
	}

	all, _ := svc.All(context.Background())
	if len(all) != 1 {
		t.Fatalf("notifications = %d, want 1", len(all))
	}
	n := all[0]
	if n.Recipient != "ACC-A" || n.Type != domain.NotificationFailure {
		t.Fatalf("notification = %+v", n)
	}
	if !strings.Contains(n.Message, "failed") {
		t.Fatalf("message = %q", n.Message)
	}
}

func TestHandleFraudAlert(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo, &fakeSink{}, zap.NewNop())

	event := events.FraudAlertEvent{
		TransactionID: "TXN-1",
		FromAccount:   "ACC-A",
		ToAccount:     "ACC-B",
		Amount:        decimal.RequireFromString("150000.00"),
		RiskScore:     60,
		Reason:        "high amount: 150000.00",
	}
	if err := svc.HandleFraudAlert(context.Background(), event); err != nil {
		t.Fatalf("HandleFraudAlert: %v", err)
	}

	all, _ := svc.All(context.Background())
	if len(all) != 1 {
		t.Fatalf("notifications = %d, want 1", len(all))
	}
	n := all[0]
	if n.Type != domain.NotificationFraudAlert || n.Recipient != "ACC-A" {
		t.Fatalf("notification = %+v", n)
	}
	if !strings.Contains(n.Message, "Risk Score: 60") {
		t.Fatalf("message = %q", n.Message)
	}
}

func TestSinkFailureStillStoresRecord(t *testing.T) {
	repo := &fakeRepo{}
	sink := &fakeSink{err: errors.New("sink down")}
	svc := New(repo, sink, zap.NewNop())

	if err := svc.HandleTransactionFailed(context.Background(), successEvent()); err != nil {
		t.Fatalf("sink failure must not fail the handler: %v", err)
	}

	all, _ := svc.All(context.Background())
	if len(all) != 1 {
		t.Fatalf("notifications = %d, want 1", len(all))
	}
	if all[0].Sent {
		t.Fatal("Sent should be false when the sink fails")
	}
}

func TestSaveFailureSurfacesForRetry(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("db down")}
	svc := New(repo, &fakeSink{}, zap.NewNop())

	if err := svc.HandleTransactionFailed(context.Background(), successEvent()); err == nil {
		t.Fatal("persistence failure must surface so the event is redelivered")
	}
}
