package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"banking-settlement/internal/xerrors"
)

var kafkaPublishErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "kafka_publish_errors_total",
		Help: "Total number of Kafka publish errors",
	},
)

// KafkaPublisher publishes settlement events through a synchronous Kafka
// producer. Messages sharing a key hash to the same partition, which is what
// gives consumers per-transaction ordering.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	attempts int
	backoff  time.Duration
}

func NewKafkaPublisher(brokers []string, attempts int, backoff time.Duration) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return newKafkaPublisher(producer, attempts, backoff), nil
}

func newKafkaPublisher(producer sarama.SyncProducer, attempts int, backoff time.Duration) *KafkaPublisher {
	if attempts < 1 {
		attempts = 1
	}
	return &KafkaPublisher{producer: producer, attempts: attempts, backoff: backoff}
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// Publish marshals payload and sends it keyed by key. Transient send failures
// are retried with backoff; exhausting the budget surfaces ErrDeliveryFailed
// to the caller rather than dropping the event.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if _, _, lastErr = p.producer.SendMessage(msg); lastErr == nil {
			return nil
		}
		log.Printf("[Publisher] send to %s failed (attempt %d/%d): %v", topic, attempt, p.attempts, lastErr)

		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(attempt)):
		}
	}

	kafkaPublishErrors.Inc()
	return fmt.Errorf("%w: topic %s key %s: %v", xerrors.ErrDeliveryFailed, topic, key, lastErr)
}
