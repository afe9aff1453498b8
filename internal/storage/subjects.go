package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sevigo/shot-warden/internal/core"
)

// JobTable exposes a table with a job_status column to the queue: point
// lookups and status patches for jobs, stalled-row listing for the sweeper.
type JobTable[T any] struct {
	store   *Store
	table   string
	queue   string
	what    string
	columns []string
}

// Builds is the subject table of the build queue.
func (s *Store) Builds() *JobTable[core.Build] {
	return &JobTable[core.Build]{store: s, table: "builds", queue: core.QueueBuild, what: "build", columns: buildColumns}
}

// Diffs is the subject table of the screenshotDiff queue.
func (s *Store) Diffs() *JobTable[core.ScreenshotDiff] {
	return &JobTable[core.ScreenshotDiff]{store: s, table: "screenshot_diffs", queue: core.QueueScreenshotDiff, what: "screenshot diff", columns: diffColumns}
}

// Notifications is the subject table of the buildNotification queue.
func (s *Store) Notifications() *JobTable[core.BuildNotification] {
	return &JobTable[core.BuildNotification]{store: s, table: "build_notifications", queue: core.QueueBuildNotification, what: "build notification", columns: notificationColumns}
}

func (t *JobTable[T]) Queue() string { return t.queue }

// Find loads the subject. A missing row wraps core.ErrNotFound.
func (t *JobTable[T]) Find(ctx context.Context, id int64) (*T, error) {
	var v T
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns("", t.columns), t.table)
	if err := t.store.get(ctx, &v, t.what, id, query, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// SetJobStatus moves the subject to status if the lifecycle allows it.
// Setting the current status again is a no-op.
func (t *JobTable[T]) SetJobStatus(ctx context.Context, id int64, status core.JobStatus) error {
	from := core.AllowedFrom(status)
	query := fmt.Sprintf(`UPDATE %s SET job_status = $2, updated_at = now() WHERE id = $1 AND job_status = ANY($3)`, t.table)
	res, err := t.store.db.ExecContext(ctx, query, id, status, pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("failed to set %s %d to %s: %w", t.what, id, status, err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 1 {
		return err
	}

	var current core.JobStatus
	query = fmt.Sprintf(`SELECT job_status FROM %s WHERE id = $1`, t.table)
	if err := t.store.get(ctx, &current, t.what, id, query, id); err != nil {
		return err
	}
	if current == status {
		return nil
	}
	return core.Unretryable(&core.InvalidTransitionError{From: current, To: status})
}

// ListStalled returns ids in progress without an update since before.
func (t *JobTable[T]) ListStalled(ctx context.Context, before time.Time) ([]int64, error) {
	var ids []int64
	query := fmt.Sprintf(`SELECT id FROM %s WHERE job_status = 'progress' AND updated_at < $1 ORDER BY id`, t.table)
	if err := t.store.db.SelectContext(ctx, &ids, query, before); err != nil {
		return nil, fmt.Errorf("failed to list stalled %s rows: %w", t.what, err)
	}
	return ids, nil
}

// ResetStatus moves ids in status from back to pending and returns the ids it moved.
func (t *JobTable[T]) ResetStatus(ctx context.Context, ids []int64, from core.JobStatus) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if !from.CanTransition(core.JobStatusPending) {
		return nil, &core.InvalidTransitionError{From: from, To: core.JobStatusPending}
	}
	var reset []int64
	query := fmt.Sprintf(`UPDATE %s SET job_status = 'pending', updated_at = now()
		WHERE id = ANY($1) AND job_status = $2 RETURNING id`, t.table)
	if err := t.store.db.SelectContext(ctx, &reset, query, pq.Array(ids), from); err != nil {
		return nil, fmt.Errorf("failed to reset %s rows: %w", t.what, err)
	}
	return reset, nil
}

func statusStrings(s []core.JobStatus) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = string(v)
	}
	return out
}
