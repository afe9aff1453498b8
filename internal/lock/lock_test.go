package lock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, locker Locker) {
	t.Helper()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.Acquire(context.Background(), "status:github:acme/web:abc", func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load(), "critical section must never be shared")
}

func TestMemoryLocker_SerializesSameKey(t *testing.T) {
	exerciseMutualExclusion(t, NewMemoryLocker(Options{TTL: time.Second, RetryDelay: 2 * time.Millisecond}))
}

func TestMemoryLocker_SecondCallerWaits(t *testing.T) {
	l := NewMemoryLocker(Options{TTL: time.Second, RetryDelay: 2 * time.Millisecond})
	entered := make(chan struct{})
	release := make(chan struct{})
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	go func() {
		_ = l.Acquire(context.Background(), "k", func(context.Context) error {
			close(entered)
			<-release
			record("first")
			return nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		_ = l.Acquire(context.Background(), "k", func(context.Context) error {
			record("second")
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second caller entered while the lease was held")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	<-done
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestMemoryLocker_DistinctKeysDoNotBlock(t *testing.T) {
	l := NewMemoryLocker(DefaultOptions())
	err := l.Acquire(context.Background(), "a", func(ctx context.Context) error {
		return l.Acquire(ctx, "b", func(context.Context) error { return nil })
	})
	assert.NoError(t, err)
}

func TestMemoryLocker_ExpiredLeaseIsTaken(t *testing.T) {
	l := NewMemoryLocker(Options{TTL: time.Minute, RetryDelay: time.Millisecond})
	now := time.Now()
	l.now = func() time.Time { return now }
	require.True(t, l.tryAcquire("k", "crashed"))
	assert.False(t, l.tryAcquire("k", "other"))

	now = now.Add(2 * time.Minute)
	assert.True(t, l.tryAcquire("k", "other"))

	l.release("k", "crashed")
	assert.False(t, l.tryAcquire("k", "third"), "a stale owner must not release the new lease")
}

func TestMemoryLocker_ContextCancelStopsWaiting(t *testing.T) {
	l := NewMemoryLocker(Options{TTL: time.Minute, RetryDelay: time.Millisecond})
	require.True(t, l.tryAcquire("k", "holder"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, "k", func(context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryLocker_ReturnsCallbackError(t *testing.T) {
	l := NewMemoryLocker(DefaultOptions())
	boom := errors.New("boom")
	assert.ErrorIs(t, l.Acquire(context.Background(), "k", func(context.Context) error { return boom }), boom)
	assert.True(t, l.tryAcquire("k", "next"), "lease is released after an error")
}

// TestPostgresLocker_SerializesSameKey needs a migrated database.
func TestPostgresLocker_SerializesSameKey(t *testing.T) {
	dsn := os.Getenv("SHOTWARDEN_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("SHOTWARDEN_TEST_DATABASE_DSN not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exerciseMutualExclusion(t, NewPostgresLocker(db, Options{TTL: 5 * time.Second, RetryDelay: 5 * time.Millisecond}, logger))
}
