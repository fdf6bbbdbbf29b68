package sub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"banking-settlement/internal/config"
	"banking-settlement/internal/domain"
	"banking-settlement/internal/events"
	"banking-settlement/internal/usecase/fraud"
	"banking-settlement/internal/usecase/ledger"
	"banking-settlement/internal/usecase/notification"
	"banking-settlement/internal/usecase/transaction"
	"banking-settlement/internal/xerrors"
)

// In-memory stores shared by the pipeline tests. They mirror the postgres
// repositories' behavior closely enough to run the whole saga in-process.

type memTxRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Transaction
}

func newMemTxRepo() *memTxRepo { return &memTxRepo{m: make(map[string]*domain.Transaction)} }

func (r *memTxRepo) Create(_ context.Context, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *t
	r.m[t.ID] = &copied
	return nil
}

func (r *memTxRepo) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.m[id]
	if !ok {
		return nil, xerrors.ErrTransactionNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *memTxRepo) History(_ context.Context, account string) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range r.m {
		if t.FromAccount == account || t.ToAccount == account {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memTxRepo) ListByStatus(_ context.Context, status domain.TransactionStatus) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range r.m {
		if t.Status == status {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memTxRepo) UpdateStatus(_ context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.m[id]
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

type memWalletStore struct {
	mu      sync.Mutex
	wallets map[string]*domain.Wallet
	settled map[string]*domain.SettledTransfer
}

func newMemWalletStore() *memWalletStore {
	return &memWalletStore{
		wallets: make(map[string]*domain.Wallet),
		settled: make(map[string]*domain.SettledTransfer),
	}
}

func (s *memWalletStore) GetWallet(_ context.Context, account string) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[account]
	if !ok {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrWalletNotFound, account)
	}
	copied := *w
	return &copied, nil
}

func (s *memWalletStore) CreateWallet(_ context.Context, w *domain.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[w.AccountNumber]; ok {
		return fmt.Errorf("%w: wallet %s", xerrors.ErrDuplicateResource, w.AccountNumber)
	}
	copied := *w
	s.wallets[w.AccountNumber] = &copied
	return nil
}

func (s *memWalletStore) ListWallets(context.Context) ([]*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		copied := *w
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memWalletStore) Settlement(_ context.Context, id string) (*domain.SettledTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settled[id]
	if !ok {
		return nil, nil
	}
	copied := *st
	return &copied, nil
}

func (s *memWalletStore) ApplyTransfer(_ context.Context, st *domain.SettledTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settled[st.TransactionID]; ok {
		return fmt.Errorf("%w: settlement %s", xerrors.ErrDuplicateResource, st.TransactionID)
	}
	from := s.wallets[st.FromAccount]
	to := s.wallets[st.ToAccount]
	if from.Balance.LessThan(st.Amount) {
		return fmt.Errorf("%w: account %s", xerrors.ErrInsufficientBalance, st.FromAccount)
	}
	st.PreviousBalance = from.Balance
	from.Balance = from.Balance.Sub(st.Amount)
	to.Balance = to.Balance.Add(st.Amount)
	st.NewBalance = from.Balance
	copied := *st
	s.settled[st.TransactionID] = &copied
	return nil
}

func (s *memWalletStore) RecordFailedTransfer(_ context.Context, st *domain.SettledTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settled[st.TransactionID]; ok {
		return fmt.Errorf("%w: settlement %s", xerrors.ErrDuplicateResource, st.TransactionID)
	}
	copied := *st
	s.settled[st.TransactionID] = &copied
	return nil
}

type memFraudRepo struct {
	mu   sync.Mutex
	logs []*domain.FraudLog
}

func (r *memFraudRepo) Save(_ context.Context, l *domain.FraudLog) (*domain.FraudLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *l
	copied.ID = int64(len(r.logs) + 1)
	r.logs = append(r.logs, &copied)
	return &copied, nil
}

func (r *memFraudRepo) CountRecentByFromAccount(_ context.Context, account string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.logs {
		if l.FromAccount == account && l.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (r *memFraudRepo) ListFlagged(context.Context) ([]*domain.FraudLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.FraudLog
	for _, l := range r.logs {
		if l.Flagged {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memFraudRepo) ListByAccount(_ context.Context, account string) ([]*domain.FraudLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.FraudLog
	for _, l := range r.logs {
		if l.FromAccount == account {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memFraudRepo) ListAll(context.Context) ([]*domain.FraudLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.FraudLog(nil), r.logs...), nil
}

type memNotifRepo struct {
	mu     sync.Mutex
	stored []*domain.Notification
}

func (r *memNotifRepo) Save(_ context.Context, n *domain.Notification) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *n
	copied.ID = int64(len(r.stored) + 1)
	r.stored = append(r.stored, &copied)
	return &copied, nil
}

func (r *memNotifRepo) ListByRecipient(_ context.Context, recipient string) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Notification
	for _, n := range r.stored {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memNotifRepo) ListByTransaction(_ context.Context, id string) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Notification
	for _, n := range r.stored {
		if n.TransactionID == id {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memNotifRepo) ListAll(context.Context) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Notification(nil), r.stored...), nil
}

type nopSink struct{}

func (nopSink) Send(context.Context, *domain.Notification) error { return nil }

type pipeline struct {
	bus          *events.InMemoryBus
	transactions *transaction.Service
	wallets      *ledger.Service
	fraudEngine  *fraud.Engine
	notify       *notification.Service
	walletStore  *memWalletStore
}

// newPipeline wires the full settlement saga over the in-memory bus: initiate
// feeds the ledger and fraud engine, the ledger's outcome closes the
// transaction, and terminal events plus alerts become notifications.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := zap.NewNop()
	bus := events.NewInMemoryBus(4)

	p := &pipeline{bus: bus, walletStore: newMemWalletStore()}
	p.transactions = transaction.New(newMemTxRepo(), bus, logger)
	p.wallets = ledger.New(p.walletStore, bus, config.LedgerConfig{
		OpeningBalance: decimal.RequireFromString("10000.00"),
		Currency:       "INR",
		LockTimeout:    time.Second,
	}, logger)
	p.fraudEngine = fraud.New(&memFraudRepo{}, bus, config.FraudConfig{
		HighAmountThreshold: decimal.RequireFromString("100000"),
		RapidWindow:         5 * time.Minute,
		RapidCount:          5,
		RoundUnit:           decimal.RequireFromString("10000"),
	}, logger)
	p.notify = notification.New(&memNotifRepo{}, nopSink{}, logger)

	for topic, h := range TransactionHandlers(p.transactions) {
		bus.Subscribe(topic, h)
	}
	for topic, h := range WalletHandlers(p.wallets) {
		bus.Subscribe(topic, h)
	}
	for topic, h := range FraudHandlers(p.fraudEngine) {
		bus.Subscribe(topic, h)
	}
	for topic, h := range NotificationHandlers(p.notify) {
		bus.Subscribe(topic, h)
	}
	t.Cleanup(bus.Close)
	return p
}

func (p *pipeline) waitForStatus(t *testing.T, id string, want domain.TransactionStatus) *domain.Transaction {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		tx, err := p.transactions.GetByID(context.Background(), id)
		if err == nil && tx.Status == want {
			return tx
		}
		if time.Now().After(deadline) {
			t.Fatalf("transaction %s never reached %s (last: %+v, err %v)", id, want, tx, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (p *pipeline) waitForNotifications(t *testing.T, id string, want int) []*domain.Notification {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		list, err := p.notify.ByTransaction(context.Background(), id)
		if err == nil && len(list) >= want {
			return list
		}
		if time.Now().After(deadline) {
			t.Fatalf("transaction %s: notifications = %d, want %d", id, len(list), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPipelineSuccessfulTransfer(t *testing.T) {
	p := newPipeline(t)

	if _, err := p.wallets.CreateWallet(context.Background(), "ACC-A", decimal.RequireFromString("1000.00")); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	if _, err := p.wallets.CreateWallet(context.Background(), "ACC-B", decimal.RequireFromString("500.00")); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}

	tx, err := p.transactions.Initiate(context.Background(), "ACC-A", "ACC-B", decimal.RequireFromString("300.00"), "rent")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	p.waitForStatus(t, tx.ID, domain.StatusSuccess)

	from, _ := p.wallets.GetWallet(context.Background(), "ACC-A")
	to, _ := p.wallets.GetWallet(context.Background(), "ACC-B")
	if from.Balance.StringFixed(2) != "700.00" || to.Balance.StringFixed(2) != "800.00" {
		t.Fatalf("balances = %s / %s", from.Balance, to.Balance)
	}

	notifications := p.waitForNotifications(t, tx.ID, 2)
	recipients := map[string]bool{}
	for _, n := range notifications {
		recipients[n.Recipient] = true
		if n.Type != domain.NotificationSuccess {
			t.Fatalf("notification type = %s", n.Type)
		}
	}
	if !recipients["ACC-A"] || !recipients["ACC-B"] {
		t.Fatalf("recipients = %v", recipients)
	}
}

func TestPipelineInsufficientBalanceFailsTransaction(t *testing.T) {
	p := newPipeline(t)

	if _, err := p.wallets.CreateWallet(context.Background(), "ACC-A", decimal.RequireFromString("50.00")); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	if _, err := p.wallets.CreateWallet(context.Background(), "ACC-B", decimal.Zero); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}

	tx, err := p.transactions.Initiate(context.Background(), "ACC-A", "ACC-B", decimal.RequireFromString("75.00"), "")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	p.waitForStatus(t, tx.ID, domain.StatusFailed)

	from, _ := p.wallets.GetWallet(context.Background(), "ACC-A")
	if from.Balance.StringFixed(2) != "50.00" {
		t.Fatalf("balance = %s, want untouched 50.00", from.Balance)
	}

	notifications := p.waitForNotifications(t, tx.ID, 1)
	if notifications[0].Type != domain.NotificationFailure || notifications[0].Recipient != "ACC-A" {
		t.Fatalf("notification = %+v", notifications[0])
	}
}

func TestPipelineLazyWalletCreation(t *testing.T) {
	p := newPipeline(t)

	tx, err := p.transactions.Initiate(context.Background(), "ACC-NEW-A", "ACC-NEW-B", decimal.RequireFromString("100.00"), "")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	p.waitForStatus(t, tx.ID, domain.StatusSuccess)

	from, err := p.wallets.GetWallet(context.Background(), "ACC-NEW-A")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if from.Balance.StringFixed(2) != "9900.00" {
		t.Fatalf("balance = %s, want stipend minus transfer", from.Balance)
	}
}

func TestPipelineFraudAlertNotification(t *testing.T) {
	p := newPipeline(t)

	if _, err := p.wallets.CreateWallet(context.Background(), "ACC-A", decimal.RequireFromString("500000.00")); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}

	tx, err := p.transactions.Initiate(context.Background(), "ACC-A", "ACC-B", decimal.RequireFromString("150000.01"), "")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	p.waitForStatus(t, tx.ID, domain.StatusSuccess)

	flagged := func() []*domain.FraudLog {
		deadline := time.Now().Add(3 * time.Second)
		for {
			list, _ := p.fraudEngine.Flagged(context.Background())
			if len(list) > 0 {
				return list
			}
			if time.Now().After(deadline) {
				t.Fatal("fraud log never flagged")
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()
	if flagged[0].TransactionID != tx.ID || flagged[0].RiskScore < 50 {
		t.Fatalf("flagged = %+v", flagged[0])
	}

	// Sender gets the sent receipt, the receiver leg, and the fraud alert.
	notifications := p.waitForNotifications(t, tx.ID, 3)
	var alert *domain.Notification
	for _, n := range notifications {
		if n.Type == domain.NotificationFraudAlert {
			alert = n
		}
	}
	if alert == nil || alert.Recipient != "ACC-A" {
		t.Fatalf("fraud alert notification missing: %+v", notifications)
	}
}
