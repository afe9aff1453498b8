package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/samber/lo"

	"github.com/sevigo/shot-warden/internal/baseline"
	"github.com/sevigo/shot-warden/internal/core"
)

// failedScreenshot matches screenshots taken of a failed test. They are
// never compared to a base.
var failedScreenshot = regexp.MustCompile(` \(failed\)\.`)

// BuildJob resolves the baseline of a build and creates its screenshot diffs.
type BuildJob struct {
	store         Store
	resolver      Resolver
	pusher        core.Pusher
	notifications *Notifications
	concluder     *Concluder
	logger        *slog.Logger
}

// NewBuildJob creates a BuildJob.
func NewBuildJob(store Store, resolver Resolver, pusher core.Pusher, notifications *Notifications, concluder *Concluder, logger *slog.Logger) *BuildJob {
	return &BuildJob{
		store:         store,
		resolver:      resolver,
		pusher:        pusher,
		notifications: notifications,
		concluder:     concluder,
		logger:        logger.With("component", "build_job"),
	}
}

// Run implements the build stage. A redelivered build reuses the diffs it
// already created and only queues the ones still pending.
func (j *BuildJob) Run(ctx context.Context, build *core.Build) error {
	log := j.logger.With("build_id", build.ID, "name", build.Name)

	if err := j.notifications.Push(ctx, build.ID, core.NotificationProgress); err != nil {
		return err
	}

	res, err := j.resolver.Resolve(ctx, build)
	if err != nil {
		return fmt.Errorf("failed to resolve baseline of build %d: %w", build.ID, err)
	}
	if err := j.store.ApplyResolution(ctx, build.ID, res); err != nil {
		return err
	}
	log.Info("baseline resolved", "type", res.Type, "base_bucket_id", bucketID(res.BaseBucket))

	if res.Type == core.BuildTypeSkipped {
		return j.concluder.Conclude(ctx, build.ID)
	}

	diffs, err := j.store.ListDiffs(ctx, build.ID)
	if err != nil {
		return err
	}
	if len(diffs) == 0 {
		if diffs, err = j.createDiffs(ctx, build, res); err != nil {
			return err
		}
	} else {
		log.Info("reusing existing diffs", "count", len(diffs))
	}

	pending := lo.FilterMap(diffs, func(d core.ScreenshotDiff, _ int) (int64, bool) {
		return d.ID, d.JobStatus == core.JobStatusPending
	})
	if len(pending) == 0 {
		return j.concluder.Conclude(ctx, build.ID)
	}
	log.Info("queueing screenshot diffs", "pending", len(pending), "total", len(diffs))
	return j.pusher.Push(ctx, core.QueueScreenshotDiff, pending...)
}

func (j *BuildJob) createDiffs(ctx context.Context, build *core.Build, res *baseline.Resolution) ([]core.ScreenshotDiff, error) {
	compare, err := j.store.ListScreenshots(ctx, build.CompareBucketID)
	if err != nil {
		return nil, err
	}
	var base []core.Screenshot
	if res.BaseBucket != nil && res.BaseBucket.ID != build.CompareBucketID {
		if base, err = j.store.ListScreenshots(ctx, res.BaseBucket.ID); err != nil {
			return nil, err
		}
	}

	tests, err := j.ensureTests(ctx, build, compare)
	if err != nil {
		return nil, err
	}

	diffs := planDiffs(build.ID, base, compare, tests)
	if len(diffs) == 0 {
		return nil, nil
	}
	return j.store.InsertDiffs(ctx, diffs)
}

// ensureTests creates a test per compare screenshot name and links the
// screenshots that have none yet.
func (j *BuildJob) ensureTests(ctx context.Context, build *core.Build, compare []core.Screenshot) (map[string]int64, error) {
	if len(compare) == 0 {
		return map[string]int64{}, nil
	}
	names := lo.Map(compare, func(s core.Screenshot, _ int) string { return s.Name })
	tests, err := j.store.EnsureTests(ctx, build.ProjectID, build.Name, names)
	if err != nil {
		return nil, err
	}
	unlinked := make(map[int64]int64)
	for _, s := range compare {
		if s.TestID == nil {
			unlinked[s.ID] = tests[s.Name]
		}
	}
	if len(unlinked) > 0 {
		if err := j.store.SetScreenshotTests(ctx, unlinked); err != nil {
			return nil, err
		}
	}
	return tests, nil
}

// planDiffs matches compare screenshots to base screenshots by name.
// Identical files complete with a zero score. Added screenshots whose file
// is already known complete without a score. Base screenshots missing from
// compare become complete removed diffs.
func planDiffs(buildID int64, base, compare []core.Screenshot, tests map[string]int64) []core.ScreenshotDiff {
	baseByName := lo.KeyBy(base, func(s core.Screenshot) string { return s.Name })
	diffs := make([]core.ScreenshotDiff, 0, len(compare)+len(base))

	for _, c := range compare {
		d := core.ScreenshotDiff{
			BuildID:             buildID,
			CompareScreenshotID: lo.ToPtr(c.ID),
			JobStatus:           core.JobStatusPending,
			ValidationStatus:    core.ValidationUnknown,
		}
		if id, ok := tests[c.Name]; ok {
			d.TestID = lo.ToPtr(id)
		}

		b, matched := baseByName[c.Name]
		if failedScreenshot.MatchString(c.Name) {
			matched = false
		}
		switch {
		case !matched:
			if c.FileID != nil {
				d.JobStatus = core.JobStatusComplete
			}
		case sameFile(b, c):
			d.BaseScreenshotID = lo.ToPtr(b.ID)
			d.Score = lo.ToPtr(0.0)
			d.JobStatus = core.JobStatusComplete
		default:
			d.BaseScreenshotID = lo.ToPtr(b.ID)
		}
		diffs = append(diffs, d)
	}

	compareNames := lo.SliceToMap(compare, func(s core.Screenshot) (string, struct{}) { return s.Name, struct{}{} })
	for _, b := range base {
		if _, ok := compareNames[b.Name]; ok {
			continue
		}
		diffs = append(diffs, core.ScreenshotDiff{
			BuildID:          buildID,
			BaseScreenshotID: lo.ToPtr(b.ID),
			TestID:           b.TestID,
			JobStatus:        core.JobStatusComplete,
			ValidationStatus: core.ValidationUnknown,
		})
	}
	return diffs
}

func sameFile(base, compare core.Screenshot) bool {
	if base.BlobKey != "" && base.BlobKey == compare.BlobKey {
		return true
	}
	return base.FileID != nil && compare.FileID != nil && *base.FileID == *compare.FileID
}

func bucketID(b *core.ScreenshotBucket) int64 {
	if b == nil {
		return 0
	}
	return b.ID
}
