// Package sub wires event-bus topics to usecase handlers. Each service gets a
// handler map keyed by topic; decode failures are permanent and fall through
// to the dead-letter queue via the consumer's retry policy.
package sub

import (
	"context"
	"encoding/json"
	"fmt"

	"banking-settlement/internal/events"
	"banking-settlement/internal/usecase/transaction"
)

// TransactionHandlers closes the settlement saga: wallet.updated outcomes
// from the ledger finalize the PENDING transaction record.
func TransactionHandlers(svc *transaction.Service) map[string]events.Handler {
	return map[string]events.Handler{
		events.TopicWalletUpdated: func(ctx context.Context, msg events.Message) error {
			var event events.WalletUpdateEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to decode wallet update: %w", err)
			}
			return svc.HandleWalletOutcome(ctx, event)
		},
	}
}
