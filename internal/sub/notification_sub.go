package sub

import (
	"context"
	"encoding/json"
	"fmt"

	"banking-settlement/internal/events"
	"banking-settlement/internal/usecase/notification"
)

// NotificationHandlers fan terminal outcomes and fraud alerts into
// per-recipient notification records.
func NotificationHandlers(svc *notification.Service) map[string]events.Handler {
	return map[string]events.Handler{
		events.TopicTransactionSuccess: func(ctx context.Context, msg events.Message) error {
			var event events.TransactionEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to decode success event: %w", err)
			}
			return svc.HandleTransactionSuccess(ctx, event)
		},
		events.TopicTransactionFailed: func(ctx context.Context, msg events.Message) error {
			var event events.TransactionEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to decode failure event: %w", err)
			}
			return svc.HandleTransactionFailed(ctx, event)
		},
		events.TopicFraudAlert: func(ctx context.Context, msg events.Message) error {
			var event events.FraudAlertEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to decode fraud alert: %w", err)
			}
			return svc.HandleFraudAlert(ctx, event)
		},
	}
}
