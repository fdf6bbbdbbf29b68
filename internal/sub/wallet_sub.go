package sub

import (
	"context"
	"encoding/json"
	"fmt"

	"banking-settlement/internal/events"
	"banking-settlement/internal/usecase/ledger"
)

// WalletHandlers feeds initiation events into the ledger. ProcessTransfer is
// idempotent per transaction id, so redeliveries are safe to hand straight
// through.
func WalletHandlers(svc *ledger.Service) map[string]events.Handler {
	return map[string]events.Handler{
		events.TopicTransactionInitiated: func(ctx context.Context, msg events.Message) error {
			var event events.TransactionEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to decode initiation event: %w", err)
			}
			_, err := svc.ProcessTransfer(ctx, event.TransactionID, event.FromAccount, event.ToAccount, event.Amount)
			return err
		},
	}
}
