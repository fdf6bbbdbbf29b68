package events

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
)

// InMemoryBus is an in-process topic/partition bus with the same delivery
// contract as the Kafka-backed bus: messages sharing a key within one topic
// are delivered in order to each subscriber; there is no ordering across
// topics or keys, and a subscriber may see a message again if the producer
// republishes it. It backs the single-binary development mode and the
// pipeline tests.
type InMemoryBus struct {
	mu         sync.Mutex
	partitions int32
	subs       map[string][]*subscription
	offsets    map[string]int64
	wg         sync.WaitGroup
	inflight   sync.WaitGroup
	closed     bool
}

type subscription struct {
	handler Handler
	queues  []chan Message
}

func NewInMemoryBus(partitions int) *InMemoryBus {
	if partitions < 1 {
		partitions = 3
	}
	return &InMemoryBus{
		partitions: int32(partitions),
		subs:       make(map[string][]*subscription),
		offsets:    make(map[string]int64),
	}
}

// Subscribe registers a handler for topic. One goroutine per partition drains
// deliveries sequentially, which is what preserves per-key ordering.
func (b *InMemoryBus) Subscribe(topic string, h Handler) {
	sub := &subscription{handler: h, queues: make([]chan Message, b.partitions)}
	for i := range sub.queues {
		q := make(chan Message, 128)
		sub.queues[i] = q
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for msg := range q {
				// Handler errors are the subscriber's problem; the bus only
				// guarantees delivery.
				_ = h(context.Background(), msg)
			}
		}()
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()
}

func (b *InMemoryBus) Publish(_ context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", topic, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus is closed")
	}
	partition := b.partitionFor(key)
	offset := b.offsets[topic]
	b.offsets[topic] = offset + 1
	subs := append([]*subscription(nil), b.subs[topic]...)
	// The reservation keeps Close from closing the queues while this publish
	// is between the closed check and the sends.
	b.inflight.Add(1)
	b.mu.Unlock()
	defer b.inflight.Done()

	// Enqueue outside the lock so a handler that publishes back into the bus
	// cannot deadlock against a full queue.
	msg := Message{Topic: topic, Key: key, Value: data, Partition: partition, Offset: offset}
	for _, sub := range subs {
		sub.queues[partition] <- msg
	}
	return nil
}

func (b *InMemoryBus) partitionFor(key string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int32(h.Sum32() % uint32(b.partitions))
}

// Close stops delivery after draining queued messages.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	// No new publishes can start now; wait out the ones already past the
	// closed check before closing their queues.
	b.inflight.Wait()

	b.mu.Lock()
	for _, subs := range b.subs {
		for _, sub := range subs {
			for _, q := range sub.queues {
				close(q)
			}
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}
