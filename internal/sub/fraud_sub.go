package sub

import (
	"context"
	"encoding/json"
	"fmt"

	"banking-settlement/internal/events"
	"banking-settlement/internal/usecase/fraud"
)

// FraudHandlers scores every initiation event in parallel with settlement.
func FraudHandlers(engine *fraud.Engine) map[string]events.Handler {
	return map[string]events.Handler{
		events.TopicTransactionInitiated: func(ctx context.Context, msg events.Message) error {
			var event events.TransactionEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to decode initiation event: %w", err)
			}
			_, err := engine.Analyze(ctx, event.TransactionID, event.FromAccount, event.ToAccount, event.Amount)
			return err
		},
	}
}
