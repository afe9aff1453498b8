package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/shot-warden/internal/core"
)

// Notifications records build notifications and queues their delivery.
type Notifications struct {
	store  Store
	pusher core.Pusher
	logger *slog.Logger
}

// NewNotifications creates a Notifications pushing onto the buildNotification queue.
func NewNotifications(store Store, pusher core.Pusher, logger *slog.Logger) *Notifications {
	return &Notifications{store: store, pusher: pusher, logger: logger.With("component", "notifications")}
}

// Push inserts a pending notification of type t for the build and queues it.
func (n *Notifications) Push(ctx context.Context, buildID int64, t core.NotificationType) error {
	row, err := n.store.CreateNotification(ctx, buildID, t)
	if err != nil {
		return fmt.Errorf("failed to create %s notification for build %d: %w", t, buildID, err)
	}
	if err := n.pusher.Push(ctx, core.QueueBuildNotification, row.ID); err != nil {
		return err
	}
	n.logger.Debug("notification queued", "build_id", buildID, "type", t, "notification_id", row.ID)
	return nil
}

// OnBuildError is the error hook of the build and diff jobs: it tells the
// provider that the build failed.
func (n *Notifications) OnBuildError(buildOf func(ctx context.Context, id int64) (int64, error)) func(ctx context.Context, id int64, err error) {
	return func(ctx context.Context, id int64, cause error) {
		buildID, err := buildOf(ctx, id)
		if err != nil {
			n.logger.Error("failed to find build of failed job", "id", id, "error", err)
			return
		}
		if err := n.Push(ctx, buildID, core.NotificationError); err != nil {
			n.logger.Error("failed to queue error notification", "build_id", buildID, "cause", cause, "error", err)
		}
	}
}

// NotificationJob delivers a queued notification.
type NotificationJob struct {
	notifier Notifier
}

// NewNotificationJob creates a NotificationJob.
func NewNotificationJob(notifier Notifier) *NotificationJob {
	return &NotificationJob{notifier: notifier}
}

// Run implements the buildNotification stage.
func (j *NotificationJob) Run(ctx context.Context, n *core.BuildNotification) error {
	return j.notifier.Notify(ctx, n)
}
