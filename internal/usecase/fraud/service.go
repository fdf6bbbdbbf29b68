package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"banking-settlement/internal/config"
	"banking-settlement/internal/domain"
	"banking-settlement/internal/events"
)

// Repository is the engine's persistence surface. The velocity rule reads the
// same append-only log the engine writes.
type Repository interface {
	Save(ctx context.Context, l *domain.FraudLog) (*domain.FraudLog, error)
	CountRecentByFromAccount(ctx context.Context, accountNumber string, since time.Time) (int64, error)
	ListFlagged(ctx context.Context) ([]*domain.FraudLog, error)
	ListByAccount(ctx context.Context, accountNumber string) ([]*domain.FraudLog, error)
	ListAll(ctx context.Context) ([]*domain.FraudLog, error)
}

// Engine scores initiation events with three additive rules. It observes and
// reports only; it never touches balances or transaction status, so scoring
// runs in parallel with settlement and can never block it.
type Engine struct {
	repo Repository
	bus  events.Publisher
	cfg  config.FraudConfig
	now  func() time.Time
	log  *zap.Logger
}

func New(repo Repository, bus events.Publisher, cfg config.FraudConfig, logger *zap.Logger) *Engine {
	return &Engine{repo: repo, bus: bus, cfg: cfg, now: time.Now, log: logger}
}

// Rule weights. The thresholds they compare against live in FraudConfig.
const (
	scoreHighAmount = 50
	scoreRapid      = 40
	scoreRound      = 10
	flagThreshold   = 50
)

// Analyze scores one transaction, persists the log unconditionally and
// publishes a fraud.alert only when the score crosses the flag threshold.
func (e *Engine) Analyze(ctx context.Context, transactionID, fromAccount, toAccount string, amount decimal.Decimal) (*domain.FraudLog, error) {
	var reasons []string
	score := 0

	if amount.GreaterThan(e.cfg.HighAmountThreshold) {
		score += scoreHighAmount
		reasons = append(reasons, fmt.Sprintf("high amount: %s", amount.StringFixed(2)))
	}

	windowStart := e.now().Add(-e.cfg.RapidWindow)
	recent, err := e.repo.CountRecentByFromAccount(ctx, fromAccount, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent analyses for %s: %w", fromAccount, err)
	}
	if recent >= int64(e.cfg.RapidCount) {
		score += scoreRapid
		reasons = append(reasons, fmt.Sprintf("rapid transactions: %d in last %s", recent, e.cfg.RapidWindow))
	}

	if amount.GreaterThanOrEqual(e.cfg.RoundUnit) && amount.Mod(e.cfg.RoundUnit).IsZero() {
		score += scoreRound
		reasons = append(reasons, fmt.Sprintf("round amount: %s", amount.StringFixed(2)))
	}

	reason := "Normal transaction"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	entry := &domain.FraudLog{
		TransactionID: transactionID,
		FromAccount:   fromAccount,
		ToAccount:     toAccount,
		Amount:        amount,
		RiskScore:     score,
		RiskLevel:     domain.RiskLevelFor(score),
		Reason:        reason,
		Flagged:       score >= flagThreshold,
		CreatedAt:     e.now().UTC(),
	}

	saved, err := e.repo.Save(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to persist fraud log for %s: %w", transactionID, err)
	}

	if !saved.Flagged {
		e.log.Info("transaction passed fraud checks",
			zap.String("transaction", transactionID),
			zap.Int("score", saved.RiskScore),
			zap.String("level", string(saved.RiskLevel)))
		return saved, nil
	}

	e.log.Warn("fraud detected",
		zap.String("transaction", transactionID),
		zap.Int("score", saved.RiskScore),
		zap.String("level", string(saved.RiskLevel)),
		zap.String("reason", saved.Reason))

	alert := events.FraudAlertEvent{
		TransactionID: saved.TransactionID,
		FromAccount:   saved.FromAccount,
		ToAccount:     saved.ToAccount,
		Amount:        saved.Amount,
		RiskScore:     saved.RiskScore,
		Reason:        saved.Reason,
		Timestamp:     saved.CreatedAt,
	}
	if err := e.bus.Publish(ctx, events.TopicFraudAlert, saved.TransactionID, alert); err != nil {
		return saved, fmt.Errorf("fraud log %s saved but alert not published: %w", transactionID, err)
	}
	return saved, nil
}

func (e *Engine) Flagged(ctx context.Context) ([]*domain.FraudLog, error) {
	return e.repo.ListFlagged(ctx)
}

func (e *Engine) ByAccount(ctx context.Context, accountNumber string) ([]*domain.FraudLog, error) {
	return e.repo.ListByAccount(ctx, accountNumber)
}

func (e *Engine) All(ctx context.Context) ([]*domain.FraudLog, error) {
	return e.repo.ListAll(ctx)
}
