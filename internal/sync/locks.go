package sync

import (
	"context"
	gosync "sync"
)

// AccountLocks hands out one lock per account. Reconciliation, refresh and
// webhook writes for an account hold it so they never interleave.
type AccountLocks struct {
	mu    gosync.Mutex
	locks map[string]chan struct{}
}

// NewAccountLocks returns an empty lock table.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[string]chan struct{})}
}

// Acquire blocks until the account lock is free or ctx ends. The returned
// func releases the lock and must be called exactly once.
func (l *AccountLocks) Acquire(ctx context.Context, accountID string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[accountID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[accountID] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once gosync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
