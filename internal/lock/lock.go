// Package lock serializes critical sections across worker processes with
// expiring leases.
package lock

import (
	"context"
	"time"
)

const (
	DefaultTTL        = 20 * time.Second
	DefaultRetryDelay = 200 * time.Millisecond
)

// Options tunes lease acquisition.
type Options struct {
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// RetryDelay is the pause between acquisition attempts.
	RetryDelay time.Duration
}

// DefaultOptions returns a 20s lease polled every 200ms.
func DefaultOptions() Options {
	return Options{TTL: DefaultTTL, RetryDelay: DefaultRetryDelay}
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// Locker runs fn while holding the lease for key. Waiters poll; there is no
// fairness between them and a waiter can starve under constant contention.
// Acquisition gives up only when ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// poll calls try until it reports success, sleeping delay between attempts.
func poll(ctx context.Context, delay time.Duration, try func() (bool, error)) error {
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
