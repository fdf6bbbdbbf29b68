package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevelFor maps an additive risk score to its level band.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= 75:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 25:
		return RiskMedium
	default:
		return RiskLow
	}
}

// FraudLog is the append-only record of one fraud analysis. Exactly one is
// written per analyzed transaction, flagged or not.
type FraudLog struct {
	ID            int64           `json:"id"`
	TransactionID string          `json:"transactionId"`
	FromAccount   string          `json:"fromAccount"`
	ToAccount     string          `json:"toAccount"`
	Amount        decimal.Decimal `json:"amount"`
	RiskScore     int             `json:"riskScore"`
	RiskLevel     RiskLevel       `json:"riskLevel"`
	Reason        string          `json:"reason"`
	Flagged       bool            `json:"flagged"`
	CreatedAt     time.Time       `json:"createdAt"`
}
