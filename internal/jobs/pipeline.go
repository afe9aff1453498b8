package jobs

import (
	"context"
	"log/slog"

	"github.com/sevigo/shot-warden/internal/core"
	"github.com/sevigo/shot-warden/internal/queue"
)

// Tables are the subject tables of the three queues.
type Tables struct {
	Builds        queue.SubjectStore[*core.Build]
	Diffs         queue.SubjectStore[*core.ScreenshotDiff]
	Notifications queue.SubjectStore[*core.BuildNotification]
}

// Handlers are the queue handlers of the pipeline, keyed by queue name.
type Handlers map[string]queue.Handler

// NewHandlers wraps the stages in status bookkeeping. A build or diff that
// fails for good queues an error notification for its build.
func NewHandlers(t Tables, build *BuildJob, screenshotDiff *ScreenshotDiffJob, notification *NotificationJob, notifications *Notifications, logger *slog.Logger) Handlers {
	buildOfBuild := func(_ context.Context, id int64) (int64, error) { return id, nil }
	buildOfDiff := func(ctx context.Context, id int64) (int64, error) {
		d, err := t.Diffs.Find(ctx, id)
		if err != nil {
			return 0, err
		}
		return d.BuildID, nil
	}

	return Handlers{
		core.QueueBuild: queue.NewModelJob("build", t.Builds, build.Run, logger,
			queue.WithErrorHook[*core.Build](notifications.OnBuildError(buildOfBuild))),
		core.QueueScreenshotDiff: queue.NewModelJob("screenshotDiff", t.Diffs, screenshotDiff.Run, logger,
			queue.WithErrorHook[*core.ScreenshotDiff](notifications.OnBuildError(buildOfDiff))),
		core.QueueBuildNotification: queue.NewModelJob("buildNotification", t.Notifications, notification.Run, logger),
	}
}
