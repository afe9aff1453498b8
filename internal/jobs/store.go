// Package jobs runs the build pipeline stages on top of the job queue: a
// build job creates the screenshot diffs, diff jobs score them and the last
// one concludes the build and queues its notification.
package jobs

import (
	"context"

	"github.com/sevigo/shot-warden/internal/baseline"
	"github.com/sevigo/shot-warden/internal/core"
)

// Store is the persistence the pipeline stages read and patch.
type Store interface {
	ListScreenshots(ctx context.Context, bucketID int64) ([]core.Screenshot, error)
	GetScreenshot(ctx context.Context, id int64) (*core.Screenshot, error)
	ApplyResolution(ctx context.Context, buildID int64, res *baseline.Resolution) error
	SetConclusion(ctx context.Context, buildID int64, c core.Conclusion) (bool, error)

	ListDiffs(ctx context.Context, buildID int64) ([]core.ScreenshotDiff, error)
	InsertDiffs(ctx context.Context, diffs []core.ScreenshotDiff) ([]core.ScreenshotDiff, error)
	CompleteDiff(ctx context.Context, id int64, o core.DiffOutcome) error
	CompleteDiffWithoutScore(ctx context.Context, id int64) error
	GroupDiffs(ctx context.Context, buildID int64, key string) (int, error)
	DiffProgress(ctx context.Context, buildID int64) (complete, changed bool, err error)

	EnsureTests(ctx context.Context, projectID int64, buildName string, names []string) (map[string]int64, error)
	SetScreenshotTests(ctx context.Context, tests map[int64]int64) error

	FileByKey(ctx context.Context, key string) (*core.File, error)
	GetOrCreateFile(ctx context.Context, f *core.File) (*core.File, error)
	AttachScreenshotFile(ctx context.Context, screenshotID, fileID int64) error

	CreateNotification(ctx context.Context, buildID int64, t core.NotificationType) (*core.BuildNotification, error)
}

// Resolver chooses the baseline of a build.
type Resolver interface {
	Resolve(ctx context.Context, build *core.Build) (*baseline.Resolution, error)
}

// Notifier delivers one build notification.
type Notifier interface {
	Notify(ctx context.Context, n *core.BuildNotification) error
}
