package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"banking-settlement/internal/domain"
	"banking-settlement/internal/events"
	"banking-settlement/internal/xerrors"
)

type fakeRepo struct {
	mu           sync.Mutex
	transactions map[string]*domain.Transaction
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{transactions: make(map[string]*domain.Transaction)}
}

func (f *fakeRepo) Create(_ context.Context, t *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.transactions[t.ID]; ok {
		return fmt.Errorf("%w: transaction %s", xerrors.ErrDuplicateResource, t.ID)
	}
	copied := *t
	f.transactions[t.ID] = &copied
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transactions[id]
	if !ok {
		return nil, xerrors.ErrTransactionNotFound
	}
	copied := *t
	return &copied, nil
}

func (f *fakeRepo) History(_ context.Context, accountNumber string) ([]*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range f.transactions {
		if t.FromAccount == accountNumber || t.ToAccount == accountNumber {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListByStatus(_ context.Context, status domain.TransactionStatus) ([]*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range f.transactions {
		if t.Status == status {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transactions[id]
	if !ok {
		return nil, xerrors.ErrTransactionNotFound
	}
	if t.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrTerminalStatus, id)
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	copied := *t
	return &copied, nil
}

type fakeBus struct {
	mu        sync.Mutex
	failTopic string
	published []busEvent
}

type busEvent struct {
	Topic   string
	Key     string
	Payload any
}

func (b *fakeBus) Publish(_ context.Context, topic, key string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if topic == b.failTopic {
		return fmt.Errorf("%w: topic %s", xerrors.ErrDeliveryFailed, topic)
	}
	b.published = append(b.published, busEvent{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (b *fakeBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	for i, e := range b.published {
		out[i] = e.Topic
	}
	return out
}

func newTestService() (*Service, *fakeRepo, *fakeBus) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	return New(repo, bus, zap.NewNop()), repo, bus
}

func TestInitiateCreatesPendingAndPublishes(t *testing.T) {
	svc, _, bus := newTestService()

	tx, err := svc.Initiate(context.Background(), "ACC-A", "ACC-B", decimal.RequireFromString("99.50"), "rent")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if tx.Status != domain.StatusPending {
		t.Fatalf("status = %s, want PENDING", tx.Status)
	}
	if !strings.HasPrefix(tx.ID, "TXN-") {
		t.Fatalf("id = %q, want TXN- prefix", tx.ID)
	}

	if len(bus.published) != 1 {
		t.Fatalf("published = %d, want 1", len(bus.published))
	}
	e := bus.published[0]
	if e.Topic != events.TopicTransactionInitiated || e.Key != tx.ID {
		t.Fatalf("event = %+v", e)
	}
	payload := e.Payload.(events.TransactionEvent)
	if payload.TransactionID != tx.ID || payload.Status != string(domain.StatusPending) {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestInitiateValidation(t *testing.T) {
	svc, _, bus := newTestService()
	ctx := context.Background()

	cases := []struct {
		name    string
		from    string
		to      string
		amount  string
		wantErr error
	}{
		{"same account", "ACC-A", "ACC-A", "10", xerrors.ErrSameAccount},
		{"same account case insensitive", "acc-a", "ACC-A", "10", xerrors.ErrSameAccount},
		{"zero amount", "ACC-A", "ACC-B", "0", xerrors.ErrNonPositiveAmount},
		{"negative amount", "ACC-A", "ACC-B", "-1", xerrors.ErrNonPositiveAmount},
		{"too many decimals", "ACC-A", "ACC-B", "1.001", xerrors.ErrAmountPrecision},
		{"missing from", "", "ACC-B", "10", xerrors.ErrAccountRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Initiate(ctx, tc.from, tc.to, decimal.RequireFromString(tc.amount), "")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
	if len(bus.published) != 0 {
		t.Fatalf("rejected requests must not publish, got %d", len(bus.published))
	}
}

func TestInitiatePublishFailureFinalizesFailed(t *testing.T) {
	svc, repo, bus := newTestService()
	bus.failTopic = events.TopicTransactionInitiated

	tx, err := svc.Initiate(context.Background(), "ACC-A", "ACC-B", decimal.NewFromInt(10), "")
	if !errors.Is(err, xerrors.ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}
	if tx == nil {
		t.Fatal("transaction record should still be returned")
	}

	stored, err := repo.GetByID(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED (no event in flight)", stored.Status)
	}
}

func TestUpdateStatusRejectsNonTerminalTarget(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.UpdateStatus(context.Background(), "TXN-1", domain.StatusPending); !errors.Is(err, xerrors.ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestUpdateStatusTerminalIsFinal(t *testing.T) {
	svc, _, bus := newTestService()

	tx, err := svc.Initiate(context.Background(), "ACC-A", "ACC-B", decimal.NewFromInt(10), "")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if _, err := svc.UpdateStatus(context.Background(), tx.ID, domain.StatusSuccess); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), tx.ID, domain.StatusFailed); !errors.Is(err, xerrors.ErrTerminalStatus) {
		t.Fatalf("second finalize: %v, want ErrTerminalStatus", err)
	}

	topics := bus.topics()
	want := []string{events.TopicTransactionInitiated, events.TopicTransactionSuccess}
	if len(topics) != len(want) || topics[0] != want[0] || topics[1] != want[1] {
		t.Fatalf("topics = %v, want %v", topics, want)
	}
}

func TestUpdateStatusUnknownTransaction(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.UpdateStatus(context.Background(), "TXN-missing", domain.StatusSuccess); !errors.Is(err, xerrors.ErrTransactionNotFound) {
		t.Fatalf("err = %v, want ErrTransactionNotFound", err)
	}
}

func TestHandleWalletOutcomeClosesSaga(t *testing.T) {
	svc, repo, bus := newTestService()

	tx, err := svc.Initiate(context.Background(), "ACC-A", "ACC-B", decimal.NewFromInt(10), "")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	err = svc.HandleWalletOutcome(context.Background(), events.WalletUpdateEvent{
		TransactionID: tx.ID,
		Operation:     domain.OpTransfer,
	})
	if err != nil {
		t.Fatalf("HandleWalletOutcome: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), tx.ID)
	if stored.Status != domain.StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", stored.Status)
	}
	topics := bus.topics()
	if topics[len(topics)-1] != events.TopicTransactionSuccess {
		t.Fatalf("last topic = %s, want %s", topics[len(topics)-1], events.TopicTransactionSuccess)
	}

	// Redelivered outcome for an already-terminal transaction is a no-op.
	err = svc.HandleWalletOutcome(context.Background(), events.WalletUpdateEvent{
		TransactionID: tx.ID,
		Operation:     domain.OpTransfer,
	})
	if err != nil {
		t.Fatalf("redelivered outcome: %v", err)
	}
}

func TestHandleWalletOutcomeFailedOperation(t *testing.T) {
	svc, repo, _ := newTestService()

	tx, err := svc.Initiate(context.Background(), "ACC-A", "ACC-B", decimal.NewFromInt(10), "")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	err = svc.HandleWalletOutcome(context.Background(), events.WalletUpdateEvent{
		TransactionID: tx.ID,
		Operation:     domain.OpTransferFailed,
		Reason:        "insufficient balance",
	})
	if err != nil {
		t.Fatalf("HandleWalletOutcome: %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), tx.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
}

func TestHandleWalletOutcomeUnknownOperation(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.HandleWalletOutcome(context.Background(), events.WalletUpdateEvent{
		TransactionID: "TXN-1",
		Operation:     "REFUND",
	})
	if !errors.Is(err, xerrors.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestHistoryRequiresAccount(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.History(context.Background(), ""); !errors.Is(err, xerrors.ErrAccountRequired) {
		t.Fatalf("err = %v, want ErrAccountRequired", err)
	}
}
