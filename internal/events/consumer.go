package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"banking-settlement/internal/dedup"
)

// Metrics
var (
	consumerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_messages_total",
			Help: "Total number of consumed messages by outcome",
		},
		[]string{"group", "topic", "outcome"},
	)
)

// RetryPolicy bounds in-process handler retries before a message is routed to
// the dead-letter topic.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Consumer runs one consumer group over a set of topics, dispatching each
// message to the handler registered for its topic. Per message it applies:
// dedup check, bounded retry, then dead-letter. Messages are always marked so
// a poison event cannot wedge its partition.
type Consumer struct {
	group    sarama.ConsumerGroup
	groupID  string
	handlers map[string]Handler
	retry    RetryPolicy
	dlq      Publisher
	dedup    dedup.Store
	dedupTTL time.Duration
	log      *zap.Logger
}

func NewConsumer(
	brokers []string,
	groupID string,
	handlers map[string]Handler,
	retry RetryPolicy,
	dlq Publisher,
	store dedup.Store,
	dedupTTL time.Duration,
	logger *zap.Logger,
) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		group:    group,
		groupID:  groupID,
		handlers: handlers,
		retry:    retry,
		dlq:      dlq,
		dedup:    store,
		dedupTTL: dedupTTL,
		log:      logger,
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}

	handler := &groupHandler{consumer: c}
	for {
		if err := c.group.Consume(ctx, topics, handler); err != nil {
			c.log.Error("consumer group error", zap.String("group", c.groupID), zap.Error(err))
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		h.consumer.handleMessage(session.Context(), Message{
			Topic:     message.Topic,
			Key:       string(message.Key),
			Value:     message.Value,
			Partition: message.Partition,
			Offset:    message.Offset,
		})
		session.MarkMessage(message, "")
	}
	return nil
}

// handleMessage applies the full delivery policy for one message. The bus is
// at-least-once, so the logical identity (group, topic, key) is checked
// against the dedup store before the handler runs; a hit means a redelivery
// of work already applied. The marker is written only once the handler has
// completed (or the message has been dead-lettered), so a crash mid-handler
// leaves no marker and the redelivery is processed again rather than skipped.
func (c *Consumer) handleMessage(ctx context.Context, msg Message) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		c.log.Warn("no handler for topic", zap.String("topic", msg.Topic))
		return
	}

	if c.dedup != nil && msg.Key != "" {
		already, err := c.dedup.Seen(ctx, c.groupID+":"+msg.Topic, msg.Key)
		if err != nil {
			// Dedup store being down must not stall settlement; handlers are
			// idempotent on their own as a second line of defense.
			c.log.Warn("dedup store unavailable, processing without dedup", zap.Error(err))
		} else if already {
			c.log.Info("skipping duplicate delivery",
				zap.String("topic", msg.Topic), zap.String("key", msg.Key))
			consumerMessagesTotal.WithLabelValues(c.groupID, msg.Topic, "duplicate").Inc()
			return
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if lastErr = handler(ctx, msg); lastErr == nil {
			c.markProcessed(ctx, msg)
			consumerMessagesTotal.WithLabelValues(c.groupID, msg.Topic, "processed").Inc()
			return
		}
		c.log.Warn("handler failed",
			zap.String("topic", msg.Topic),
			zap.String("key", msg.Key),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt == c.retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retry.Backoff * time.Duration(attempt)):
		}
	}

	c.deadLetter(ctx, msg, lastErr)
}

func (c *Consumer) markProcessed(ctx context.Context, msg Message) {
	if c.dedup == nil || msg.Key == "" {
		return
	}
	if _, err := c.dedup.MarkProcessed(ctx, c.groupID+":"+msg.Topic, msg.Key, c.dedupTTL); err != nil {
		c.log.Warn("failed to record dedup marker", zap.Error(err))
	}
}

// DeadLetter wraps an undeliverable message for manual inspection.
type DeadLetter struct {
	ID       string          `json:"id"`
	Group    string          `json:"group"`
	Topic    string          `json:"topic"`
	Key      string          `json:"key"`
	Payload  json.RawMessage `json:"payload"`
	Error    string          `json:"error"`
	FailedAt time.Time       `json:"failedAt"`
}

func (c *Consumer) deadLetter(ctx context.Context, msg Message, cause error) {
	dl := DeadLetter{
		ID:       uuid.NewString(),
		Group:    c.groupID,
		Topic:    msg.Topic,
		Key:      msg.Key,
		Payload:  json.RawMessage(msg.Value),
		Error:    cause.Error(),
		FailedAt: time.Now().UTC(),
	}

	if c.dlq == nil {
		c.log.Error("retry budget exhausted and no dead-letter publisher configured",
			zap.String("topic", msg.Topic), zap.String("key", msg.Key), zap.Error(cause))
		return
	}

	if err := c.dlq.Publish(ctx, msg.Topic+DeadLetterSuffix, msg.Key, dl); err != nil {
		c.log.Error("failed to publish dead letter",
			zap.String("topic", msg.Topic), zap.String("key", msg.Key), zap.Error(err))
		return
	}

	c.markProcessed(ctx, msg)
	consumerMessagesTotal.WithLabelValues(c.groupID, msg.Topic, "dead_letter").Inc()
	c.log.Error("message routed to dead-letter queue",
		zap.String("id", dl.ID),
		zap.String("topic", msg.Topic),
		zap.String("key", msg.Key),
		zap.Error(cause))
}
