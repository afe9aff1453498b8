package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type lease struct {
	owner   string
	expires time.Time
}

// MemoryLocker keeps leases in process. It has the same expiry semantics as
// PostgresLocker and serves tests and single-process deployments.
type MemoryLocker struct {
	opts   Options
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewMemoryLocker creates an in-process Locker.
func NewMemoryLocker(opts Options) *MemoryLocker {
	return &MemoryLocker{opts: opts.withDefaults(), leases: make(map[string]lease), now: time.Now}
}

func (m *MemoryLocker) Acquire(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	owner := uuid.NewString()
	err := poll(ctx, m.opts.RetryDelay, func() (bool, error) {
		return m.tryAcquire(key, owner), nil
	})
	if err != nil {
		return fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}
	defer m.release(key, owner)
	return fn(ctx)
}

func (m *MemoryLocker) tryAcquire(key, owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if l, ok := m.leases[key]; ok && l.expires.After(now) {
		return false
	}
	m.leases[key] = lease{owner: owner, expires: now.Add(m.opts.TTL)}
	return true
}

func (m *MemoryLocker) release(key, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leases[key]; ok && l.owner == owner {
		delete(m.leases, key)
	}
}
