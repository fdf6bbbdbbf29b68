// Package dedup tracks which (namespace, key) pairs a consumer has already
// applied, so at-least-once redelivery does not double-apply effects.
package dedup

import (
	"context"
	"sync"
	"time"
)

type Store interface {
	// Seen reports whether the pair has been recorded, without recording it.
	Seen(ctx context.Context, namespace, key string) (bool, error)
	// MarkProcessed records the pair and reports whether it was already
	// present. The check-and-set must be atomic.
	MarkProcessed(ctx context.Context, namespace, key string, ttl time.Duration) (bool, error)
}

// Memory is a process-local Store for tests and the single-binary mode.
type Memory struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]time.Time)}
}

func (m *Memory) Seen(_ context.Context, namespace, key string) (bool, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.seen[namespace+":"+key]
	return ok && (expiry.IsZero() || now.Before(expiry)), nil
}

func (m *Memory) MarkProcessed(_ context.Context, namespace, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	k := namespace + ":" + key

	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, ok := m.seen[k]; ok && (expiry.IsZero() || now.Before(expiry)) {
		return true, nil
	}
	var expiry time.Time
	if ttl > 0 {
		expiry = now.Add(ttl)
	}
	m.seen[k] = expiry
	return false, nil
}
