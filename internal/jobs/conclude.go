package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/shot-warden/internal/core"
)

// Concluder writes the conclusion of a build once all its diffs are complete.
type Concluder struct {
	store         Store
	notifications *Notifications
	logger        *slog.Logger
}

// NewConcluder creates a Concluder.
func NewConcluder(store Store, notifications *Notifications, logger *slog.Logger) *Concluder {
	return &Concluder{store: store, notifications: notifications, logger: logger.With("component", "conclude")}
}

// Conclude sets the conclusion and queues the matching notification. Only the
// call that writes the conclusion queues it, so concurrent diff jobs
// finishing together notify once.
func (c *Concluder) Conclude(ctx context.Context, buildID int64) error {
	complete, changed, err := c.store.DiffProgress(ctx, buildID)
	if err != nil {
		return err
	}
	if !complete {
		return nil
	}

	conclusion, notification := core.ConclusionNoChanges, core.NotificationNoDiffDetected
	if changed {
		conclusion, notification = core.ConclusionChangesDetected, core.NotificationDiffDetected
	}
	set, err := c.store.SetConclusion(ctx, buildID, conclusion)
	if err != nil {
		return fmt.Errorf("failed to conclude build %d: %w", buildID, err)
	}
	if !set {
		c.logger.Debug("build already concluded", "build_id", buildID)
		return nil
	}

	c.logger.Info("build concluded", "build_id", buildID, "conclusion", conclusion)
	return c.notifications.Push(ctx, buildID, notification)
}
