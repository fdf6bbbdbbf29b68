package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"banking-settlement/internal/config"
	"banking-settlement/internal/domain"
	"banking-settlement/internal/events"
	"banking-settlement/internal/xerrors"
	"banking-settlement/pkg/utils"
)

// WalletStore is the persistence surface the ledger needs. ApplyTransfer and
// RecordFailedTransfer must write the settlement marker atomically with any
// balance change.
type WalletStore interface {
	GetWallet(ctx context.Context, accountNumber string) (*domain.Wallet, error)
	CreateWallet(ctx context.Context, w *domain.Wallet) error
	ListWallets(ctx context.Context) ([]*domain.Wallet, error)

	// Settlement returns the recorded outcome for the transaction id, or nil
	// when the transfer has not been applied.
	Settlement(ctx context.Context, transactionID string) (*domain.SettledTransfer, error)
	// ApplyTransfer debits and credits by s.Amount, guarding the debit against
	// the stored balance, and fills s.PreviousBalance and s.NewBalance from
	// the balances it actually applied. It returns ErrInsufficientBalance when
	// the stored balance no longer covers the amount.
	ApplyTransfer(ctx context.Context, s *domain.SettledTransfer) error
	RecordFailedTransfer(ctx context.Context, s *domain.SettledTransfer) error
}

// Service owns account balances. All mutation funnels through ProcessTransfer
// under per-account locks, which is what keeps balances non-negative and
// conserves funds under concurrent, possibly duplicated deliveries.
type Service struct {
	store WalletStore
	bus   events.Publisher
	cfg   config.LedgerConfig
	locks *accountLocks
	now   func() time.Time
	log   *zap.Logger
}

func New(store WalletStore, bus events.Publisher, cfg config.LedgerConfig, logger *zap.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		cfg:   cfg,
		locks: newAccountLocks(),
		now:   time.Now,
		log:   logger,
	}
}

// CreateWallet registers a wallet explicitly. An empty account number gets a
// generated one; a duplicate account is rejected, not overwritten.
func (s *Service) CreateWallet(ctx context.Context, accountNumber string, initialBalance decimal.Decimal) (*domain.Wallet, error) {
	if initialBalance.Sign() < 0 {
		return nil, xerrors.ErrNonPositiveAmount
	}
	if accountNumber == "" {
		accountNumber = utils.NewAccountNumber()
	}

	w := &domain.Wallet{
		AccountNumber: accountNumber,
		Balance:       initialBalance,
		Currency:      s.cfg.Currency,
		Active:        true,
		CreatedAt:     s.now().UTC(),
		UpdatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateWallet(ctx, w); err != nil {
		if xerrors.IsDuplicate(err) {
			return nil, fmt.Errorf("%w: wallet %s", xerrors.ErrDuplicateResource, accountNumber)
		}
		return nil, err
	}

	s.log.Info("wallet created",
		zap.String("account", w.AccountNumber),
		zap.String("balance", w.Balance.StringFixed(2)))
	return w, nil
}

func (s *Service) GetWallet(ctx context.Context, accountNumber string) (*domain.Wallet, error) {
	return s.store.GetWallet(ctx, accountNumber)
}

func (s *Service) ListWallets(ctx context.Context) ([]*domain.Wallet, error) {
	return s.store.ListWallets(ctx)
}

// ProcessTransfer settles one transfer:
//
//  1. dedup by transaction id (and again inside the critical section),
//  2. lock both accounts in fixed order with a bounded wait,
//  3. resolve or lazily create the wallets with the configured stipend,
//  4. check funds; insufficient balance is a business outcome recorded as a
//     failed settlement, never a partial application,
//  5. debit and credit inside the same critical section,
//  6. publish wallet.updated with the outcome.
//
// A non-nil error is transient (lock wait, storage, publish) and is retried
// via redelivery; business failure comes back as a settled record with
// Operation TRANSFER_FAILED.
func (s *Service) ProcessTransfer(ctx context.Context, transactionID, fromAccount, toAccount string, amount decimal.Decimal) (*domain.SettledTransfer, error) {
	if err := domain.ValidateTransfer(fromAccount, toAccount, amount); err != nil {
		return nil, err
	}

	if settled, err := s.store.Settlement(ctx, transactionID); err != nil {
		return nil, err
	} else if settled != nil {
		return s.replay(ctx, settled)
	}

	unlock, err := s.locks.lockPair(ctx, fromAccount, toAccount, s.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// The first check raced anything that settled between it and the lock.
	if settled, err := s.store.Settlement(ctx, transactionID); err != nil {
		return nil, err
	} else if settled != nil {
		return s.replay(ctx, settled)
	}

	fromWallet, err := s.getOrCreate(ctx, fromAccount)
	if err != nil {
		return nil, err
	}
	toWallet, err := s.getOrCreate(ctx, toAccount)
	if err != nil {
		return nil, err
	}

	if !fromWallet.Active || !toWallet.Active {
		reason := fmt.Sprintf("wallet inactive: %s", inactiveOf(fromWallet, toWallet))
		return s.settleFailed(ctx, transactionID, fromWallet, toAccount, amount, reason)
	}

	if fromWallet.Balance.LessThan(amount) {
		reason := fmt.Sprintf("%s: available %s, required %s",
			xerrors.ErrInsufficientBalance, fromWallet.Balance.StringFixed(2), amount.StringFixed(2))
		s.log.Warn("transfer rejected",
			zap.String("transaction", transactionID),
			zap.String("from", fromAccount),
			zap.String("reason", reason))
		return s.settleFailed(ctx, transactionID, fromWallet, toAccount, amount, reason)
	}

	settled := &domain.SettledTransfer{
		TransactionID: transactionID,
		FromAccount:   fromWallet.AccountNumber,
		ToAccount:     toWallet.AccountNumber,
		Amount:        amount,
		Operation:     domain.OpTransfer,
		SettledAt:     s.now().UTC(),
	}
	if err := s.store.ApplyTransfer(ctx, settled); err != nil {
		if errors.Is(err, xerrors.ErrInsufficientBalance) {
			// Another replica drained the account between our read and the
			// guarded debit. Settle as a failure against the stored balance.
			fresh, gerr := s.store.GetWallet(ctx, fromAccount)
			if gerr != nil {
				return nil, gerr
			}
			reason := fmt.Sprintf("%s: available %s, required %s",
				xerrors.ErrInsufficientBalance, fresh.Balance.StringFixed(2), amount.StringFixed(2))
			return s.settleFailed(ctx, transactionID, fresh, toAccount, amount, reason)
		}
		return nil, fmt.Errorf("failed to apply transfer %s: %w", transactionID, err)
	}

	s.log.Info("transfer settled",
		zap.String("transaction", transactionID),
		zap.String("from", fromWallet.AccountNumber),
		zap.String("to", toWallet.AccountNumber),
		zap.String("amount", amount.StringFixed(2)))

	return settled, s.publishOutcome(ctx, settled)
}

func (s *Service) settleFailed(ctx context.Context, transactionID string, fromWallet *domain.Wallet, toAccount string, amount decimal.Decimal, reason string) (*domain.SettledTransfer, error) {
	settled := &domain.SettledTransfer{
		TransactionID:   transactionID,
		FromAccount:     fromWallet.AccountNumber,
		ToAccount:       toAccount,
		Amount:          amount,
		Operation:       domain.OpTransferFailed,
		PreviousBalance: fromWallet.Balance,
		NewBalance:      fromWallet.Balance,
		Reason:          reason,
		SettledAt:       s.now().UTC(),
	}
	if err := s.store.RecordFailedTransfer(ctx, settled); err != nil {
		return nil, fmt.Errorf("failed to record failed transfer %s: %w", transactionID, err)
	}
	return settled, s.publishOutcome(ctx, settled)
}

// replay handles a redelivered initiation event: no balance change, but the
// outcome event is republished in case the first publish never made it out.
func (s *Service) replay(ctx context.Context, settled *domain.SettledTransfer) (*domain.SettledTransfer, error) {
	s.log.Info("duplicate transfer delivery, replaying recorded outcome",
		zap.String("transaction", settled.TransactionID),
		zap.String("operation", settled.Operation))
	return settled, s.publishOutcome(ctx, settled)
}

func (s *Service) publishOutcome(ctx context.Context, settled *domain.SettledTransfer) error {
	event := events.WalletUpdateEvent{
		AccountNumber:   settled.FromAccount,
		PreviousBalance: settled.PreviousBalance,
		NewBalance:      settled.NewBalance,
		Amount:          settled.Amount,
		Operation:       settled.Operation,
		TransactionID:   settled.TransactionID,
		Reason:          settled.Reason,
		Timestamp:       settled.SettledAt,
	}
	if err := s.bus.Publish(ctx, events.TopicWalletUpdated, settled.TransactionID, event); err != nil {
		return fmt.Errorf("transfer %s settled but outcome not published: %w", settled.TransactionID, err)
	}
	return nil
}

func (s *Service) getOrCreate(ctx context.Context, accountNumber string) (*domain.Wallet, error) {
	w, err := s.store.GetWallet(ctx, accountNumber)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, xerrors.ErrWalletNotFound) {
		return nil, err
	}

	s.log.Info("wallet not found, creating with opening stipend",
		zap.String("account", accountNumber),
		zap.String("stipend", s.cfg.OpeningBalance.StringFixed(2)))

	w = &domain.Wallet{
		AccountNumber: accountNumber,
		Balance:       s.cfg.OpeningBalance,
		Currency:      s.cfg.Currency,
		Active:        true,
		CreatedAt:     s.now().UTC(),
		UpdatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateWallet(ctx, w); err != nil {
		if xerrors.IsDuplicate(err) {
			// Lost a create race with another transfer; the row exists now.
			return s.store.GetWallet(ctx, accountNumber)
		}
		return nil, err
	}
	return w, nil
}

func inactiveOf(from, to *domain.Wallet) string {
	if !from.Active {
		return from.AccountNumber
	}
	return to.AccountNumber
}
