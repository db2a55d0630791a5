// Package lock provides short-lived named locks used to keep two assignment
// attempts for the same sender from running side by side.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotAcquired = errors.New("lock held by another owner")

// Locker acquires a lock for key that expires after ttl. The returned release
// function is safe to call once the lock has already expired.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Local is an in-process Locker for single-node deployments and tests.
type Local struct {
	mu    sync.Mutex
	held  map[string]localEntry
	now   func() time.Time
	nextN uint64
}

type localEntry struct {
	owner   uint64
	expires time.Time
}

func NewLocal() *Local {
	return &Local{
		held: make(map[string]localEntry),
		now:  time.Now,
	}
}

func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrNotAcquired
	}
	l.nextN++
	owner := l.nextN
	l.held[key] = localEntry{owner: owner, expires: now.Add(ttl)}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if e, ok := l.held[key]; ok && e.owner == owner {
			delete(l.held, key)
		}
	}, nil
}
