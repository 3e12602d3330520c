// Package lock provides the in-process LockManager used when the engine runs
// as a single instance. Multi-instance deployments use the Redis lock in
// internal/cache/redis instead.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/chainbazaar/escrowd/internal/domain"
)

// KeyMutex implements domain.LockManager with a per-key in-memory mutex
// table. Acquire is non-blocking, matching the distributed implementation.
// The ttl argument is ignored: an in-process holder cannot outlive the
// process that would enforce it.
type KeyMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyMutex creates an empty KeyMutex.
func NewKeyMutex() *KeyMutex {
	return &KeyMutex{held: make(map[string]struct{})}
}

// Acquire obtains the lock for key or returns domain.ErrLockHeld. The
// returned unlock function is safe to call more than once.
func (m *KeyMutex) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = struct{}{}

	released := false
	unlock := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(m.held, key)
	}
	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*KeyMutex)(nil)
