package lock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const acquireQuery = `
	INSERT INTO locks (key, owner, expires_at)
	VALUES ($1, $2, now() + make_interval(secs => $3))
	ON CONFLICT (key) DO UPDATE
		SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
		WHERE locks.expires_at < now()`

const releaseQuery = `DELETE FROM locks WHERE key = $1 AND owner = $2`

// PostgresLocker stores leases in the locks table so that every worker
// process sharing the database sees them.
type PostgresLocker struct {
	db     *sqlx.DB
	opts   Options
	logger *slog.Logger
}

// NewPostgresLocker creates a Locker backed by the locks table.
func NewPostgresLocker(db *sqlx.DB, opts Options, logger *slog.Logger) *PostgresLocker {
	return &PostgresLocker{db: db, opts: opts.withDefaults(), logger: logger.With("component", "lock")}
}

func (p *PostgresLocker) Acquire(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	owner := uuid.NewString()
	ttl := p.opts.TTL.Seconds()

	err := poll(ctx, p.opts.RetryDelay, func() (bool, error) {
		res, err := p.db.ExecContext(ctx, acquireQuery, key, owner, ttl)
		if err != nil {
			return false, fmt.Errorf("failed to insert lease: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		return n == 1, nil
	})
	if err != nil {
		return fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}

	defer func() {
		// The caller's context may be done already; the lease must still go.
		if _, err := p.db.ExecContext(context.WithoutCancel(ctx), releaseQuery, key, owner); err != nil {
			p.logger.Error("failed to release lock", "key", key, "error", err)
		}
	}()
	return fn(ctx)
}
