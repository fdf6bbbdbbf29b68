package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"banking-settlement/internal/xerrors"
)

// accountLocks serializes balance mutation per account. Two transfers touching
// the same pair of accounts in opposite directions always acquire in the same
// lexicographic order, so the pair acquisition cannot deadlock.
type accountLocks struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func newAccountLocks() *accountLocks {
	return &accountLocks{sems: make(map[string]chan struct{})}
}

func (l *accountLocks) sem(account string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[account]
	if !ok {
		s = make(chan struct{}, 1)
		l.sems[account] = s
	}
	return s
}

func (l *accountLocks) acquire(ctx context.Context, account string, timeout time.Duration) (func(), error) {
	s := l.sem(account)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: account %s", xerrors.ErrLockTimeout, account)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lockPair takes both account locks in fixed global (lexicographic) order.
// A bounded wait that expires is a transient failure; the event layer retries
// it via redelivery.
func (l *accountLocks) lockPair(ctx context.Context, a, b string, timeout time.Duration) (func(), error) {
	first, second := a, b
	if first > second {
		first, second = second, first
	}

	releaseFirst, err := l.acquire(ctx, first, timeout)
	if err != nil {
		return nil, err
	}
	releaseSecond, err := l.acquire(ctx, second, timeout)
	if err != nil {
		releaseFirst()
		return nil, err
	}
	return func() {
		releaseSecond()
		releaseFirst()
	}, nil
}
