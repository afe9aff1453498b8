package core

import (
	"context"
	"io"
	"time"
)

// NotificationType is a build lifecycle event.
type NotificationType string

const (
	NotificationQueued         NotificationType = "queued"
	NotificationProgress       NotificationType = "progress"
	NotificationNoDiffDetected NotificationType = "no-diff-detected"
	NotificationDiffDetected   NotificationType = "diff-detected"
	NotificationDiffAccepted   NotificationType = "diff-accepted"
	NotificationDiffRejected   NotificationType = "diff-rejected"
	NotificationError          NotificationType = "error"
	NotificationAborted        NotificationType = "aborted"
	NotificationExpired        NotificationType = "expired"
)

// BuildNotification is one lifecycle event queued for delivery to the provider.
type BuildNotification struct {
	ID        int64            `db:"id"`
	BuildID   int64            `db:"build_id"`
	Type      NotificationType `db:"type"`
	JobStatus JobStatus        `db:"job_status"`
	CreatedAt time.Time        `db:"created_at"`
}

// Commit is a single entry of a git history listing.
type Commit struct {
	SHA string
}

// GitHistory lists the most recent commits reachable from a ref.
type GitHistory interface {
	ListCommits(ctx context.Context, ref string, limit int) ([]Commit, error)
}

// BlobStore reads and writes content-addressed blobs.
type BlobStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Put(ctx context.Context, key, contentType string, r io.Reader) error
}
