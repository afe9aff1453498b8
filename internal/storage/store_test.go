package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/shot-warden/internal/baseline"
	"github.com/sevigo/shot-warden/internal/core"
	"github.com/sevigo/shot-warden/internal/db"
	"github.com/sevigo/shot-warden/internal/storage"
)

// newStore connects to a scratch database, migrates and truncates it.
func newStore(t *testing.T) *storage.Store {
	t.Helper()
	dsn := os.Getenv("SHOTWARDEN_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("SHOTWARDEN_TEST_DATABASE_DSN not set")
	}
	conn, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, (&db.DB{DB: conn}).RunMigrations())
	_, err = conn.Exec(`TRUNCATE projects, screenshot_buckets, builds, tests, files, screenshots,
		screenshot_diffs, ignored_changes, build_notifications, pull_requests, locks RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return storage.NewStore(conn)
}

type fixture struct {
	project *core.Project
	buckets map[string]*core.ScreenshotBucket
}

func seed(t *testing.T, ctx context.Context, s *storage.Store) fixture {
	t.Helper()
	p := &core.Project{Name: "web", Provider: core.ProviderGitHub, RepoOwner: "acme", RepoName: "web", ReferenceBranch: "main"}
	require.NoError(t, s.CreateProject(ctx, p))

	f := fixture{project: p, buckets: map[string]*core.ScreenshotBucket{}}
	for _, b := range []struct{ commit, branch string }{{"c1", "main"}, {"c2", "main"}, {"c3", "main"}, {"f1", "feature"}} {
		bucket := &core.ScreenshotBucket{ProjectID: p.ID, Name: "default", Commit: b.commit, Branch: b.branch, Mode: core.BuildModeCI, Complete: true}
		require.NoError(t, s.CreateBucket(ctx, bucket))
		f.buckets[b.commit] = bucket
	}
	return f
}

func TestStore_BucketLookups(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := seed(t, ctx, s)

	q := core.BucketQuery{ProjectID: f.project.ID, Name: "default", Mode: core.BuildModeCI, Branch: "main", ExcludeID: f.buckets["f1"].ID}

	got, err := s.FindBucketByCommits(ctx, q, []string{"x", "c2", "c3"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c2", got.Commit, "the first listed commit with a bucket wins")

	got, err = s.FindBucketByCommits(ctx, q, []string{"nope"})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.LatestBucketOnBranch(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "c3", got.Commit)

	q.ExcludeID = f.buckets["c3"].ID
	got, err = s.LatestBucketOnBranch(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "c2", got.Commit, "the compare bucket is never its own base")

	_, err = s.GetBucket(ctx, 9999)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_JobStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := seed(t, ctx, s)

	build := &core.Build{ProjectID: f.project.ID, Name: "default", Mode: core.BuildModeCI, CompareBucketID: f.buckets["f1"].ID}
	require.NoError(t, s.CreateBuild(ctx, build))
	builds := s.Builds()

	require.NoError(t, builds.SetJobStatus(ctx, build.ID, core.JobStatusProgress))
	require.NoError(t, builds.SetJobStatus(ctx, build.ID, core.JobStatusProgress), "redelivery re-enters progress")
	require.NoError(t, builds.SetJobStatus(ctx, build.ID, core.JobStatusComplete))
	require.NoError(t, builds.SetJobStatus(ctx, build.ID, core.JobStatusComplete), "repeating the current status is a no-op")

	err := builds.SetJobStatus(ctx, build.ID, core.JobStatusPending)
	var invalid *core.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, core.JobStatusComplete, invalid.From)

	got, err := builds.Find(ctx, build.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusComplete, got.JobStatus)

	_, err = builds.Find(ctx, 424242)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_SweepAndReplay(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := seed(t, ctx, s)
	builds := s.Builds()

	var ids []int64
	for range 3 {
		b := &core.Build{ProjectID: f.project.ID, Name: "default", Mode: core.BuildModeCI, CompareBucketID: f.buckets["f1"].ID}
		require.NoError(t, s.CreateBuild(ctx, b))
		ids = append(ids, b.ID)
	}
	require.NoError(t, builds.SetJobStatus(ctx, ids[0], core.JobStatusProgress))
	require.NoError(t, builds.SetJobStatus(ctx, ids[1], core.JobStatusProgress))
	require.NoError(t, builds.SetJobStatus(ctx, ids[1], core.JobStatusError))

	stalled, err := builds.ListStalled(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0]}, stalled)

	reset, err := builds.ResetStatus(ctx, ids, core.JobStatusError)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1]}, reset)

	got, err := builds.Find(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusPending, got.JobStatus)

	reset, err = builds.ResetStatus(ctx, ids, core.JobStatusProgress)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0]}, reset, "the sweep resets stalled progress")

	_, err = builds.ResetStatus(ctx, ids, core.JobStatusComplete)
	var invalid *core.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, core.JobStatusComplete, invalid.From)
}

func TestStore_ResolutionAndConclusion(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := seed(t, ctx, s)

	baseBranch := "main"
	build := &core.Build{ProjectID: f.project.ID, Name: "default", Mode: core.BuildModeCI, CompareBucketID: f.buckets["f1"].ID, BaseBranch: &baseBranch}
	require.NoError(t, s.CreateBuild(ctx, build))

	err := s.ApplyResolution(ctx, build.ID, &baseline.Resolution{
		Type:   core.BuildTypeCheck,
		Result: baseline.Result{BaseBucket: f.buckets["c2"], BaseBranch: "main", BaseBranchResolvedFrom: baseline.ResolvedFromUser},
	})
	require.NoError(t, err)

	got, err := s.GetBuild(ctx, build.ID)
	require.NoError(t, err)
	require.NoError(t, got.Validate())
	assert.Equal(t, f.buckets["c2"].ID, *got.BaseBucketID)
	assert.Equal(t, baseline.ResolvedFromUser, *got.BaseBranchResolvedFrom)

	first, err := s.SetConclusion(ctx, build.ID, core.ConclusionChangesDetected)
	require.NoError(t, err)
	second, err := s.SetConclusion(ctx, build.ID, core.ConclusionNoChanges)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second, "the conclusion is written once")

	prior, err := s.HasPriorBuild(ctx, f.project.ID, "default", build.ID)
	require.NoError(t, err)
	assert.False(t, prior)
}

func TestStore_DiffsGroupingAndProgress(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := seed(t, ctx, s)

	build := &core.Build{ProjectID: f.project.ID, Name: "default", Mode: core.BuildModeCI, CompareBucketID: f.buckets["f1"].ID}
	require.NoError(t, s.CreateBuild(ctx, build))

	tests, err := s.EnsureTests(ctx, f.project.ID, "default", []string{"home", "about", "home"})
	require.NoError(t, err)
	require.Len(t, tests, 2)
	again, err := s.EnsureTests(ctx, f.project.ID, "default", []string{"home"})
	require.NoError(t, err)
	assert.Equal(t, tests["home"], again["home"])

	home, about := tests["home"], tests["about"]
	pair := func(name string) (base, compare *int64) {
		b := &core.Screenshot{BucketID: f.buckets["c3"].ID, Name: name, BlobKey: "base-" + name}
		c := &core.Screenshot{BucketID: f.buckets["f1"].ID, Name: name, BlobKey: "compare-" + name}
		require.NoError(t, s.CreateScreenshot(ctx, b))
		require.NoError(t, s.CreateScreenshot(ctx, c))
		return &b.ID, &c.ID
	}
	homeBase, homeCompare := pair("home")
	aboutBase, aboutCompare := pair("about")
	diffs, err := s.InsertDiffs(ctx, []core.ScreenshotDiff{
		{BuildID: build.ID, TestID: &home, BaseScreenshotID: homeBase, CompareScreenshotID: homeCompare, JobStatus: core.JobStatusPending},
		{BuildID: build.ID, TestID: &about, BaseScreenshotID: aboutBase, CompareScreenshotID: aboutCompare, JobStatus: core.JobStatusPending},
	})
	require.NoError(t, err)
	require.Len(t, diffs, 2)

	complete, _, err := s.DiffProgress(ctx, build.ID)
	require.NoError(t, err)
	assert.False(t, complete)

	key, fp := "sha-of-mask", "v1:g16:d1:t0.002,0.02,0.08:00000000000000ff"
	for _, d := range diffs {
		require.NoError(t, s.CompleteDiff(ctx, d.ID, core.DiffOutcome{Score: 0.1, DiffKey: &key, Fingerprint: &fp}))
	}
	size, err := s.GroupDiffs(ctx, build.ID, key)
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	listed, err := s.ListDiffs(ctx, build.ID)
	require.NoError(t, err)
	for _, d := range listed {
		require.NotNil(t, d.Group)
		assert.Equal(t, key, *d.Group)
	}

	complete, changed, err := s.DiffProgress(ctx, build.ID)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.True(t, changed)

	for _, testID := range []int64{home, about} {
		require.NoError(t, s.IgnoreChange(ctx, core.IgnoredChange{ProjectID: f.project.ID, TestID: testID, Fingerprint: fp}))
	}
	_, changed, err = s.DiffProgress(ctx, build.ID)
	require.NoError(t, err)
	assert.False(t, changed, "ignored fingerprints are not changes")

	added, err := s.InsertDiffs(ctx, []core.ScreenshotDiff{{BuildID: build.ID, CompareScreenshotID: homeCompare, JobStatus: core.JobStatusComplete}})
	require.NoError(t, err)
	require.Len(t, added, 1)
	_, changed, err = s.DiffProgress(ctx, build.ID)
	require.NoError(t, err)
	assert.True(t, changed, "an added screenshot is a change")
}

func TestStore_PullRequests(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := seed(t, ctx, s)

	pr, err := s.EnsurePullRequest(ctx, f.project.ID, 42)
	require.NoError(t, err)
	same, err := s.EnsurePullRequest(ctx, f.project.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, pr.ID, same.ID)
	assert.Nil(t, pr.CommentID)

	require.NoError(t, s.SetPullRequestComment(ctx, pr.ID, 777))
	require.NoError(t, s.UpdatePullRequestState(ctx, f.project.ID, 42, "closed", true))

	got, err := s.GetPullRequest(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(777), *got.CommentID)
	assert.True(t, got.Merged)
	assert.Equal(t, "closed", got.State)

	require.NoError(t, s.MarkCommentDeleted(ctx, pr.ID))
	got, err = s.GetPullRequest(ctx, pr.ID)
	require.NoError(t, err)
	assert.True(t, got.CommentDeleted)
}

func TestStore_BuildStatesAtCommit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := seed(t, ctx, s)

	var last int64
	for range 2 {
		b := &core.Build{ProjectID: f.project.ID, Name: "default", Mode: core.BuildModeCI, CompareBucketID: f.buckets["f1"].ID}
		require.NoError(t, s.CreateBuild(ctx, b))
		last = b.ID
	}
	_, err := s.CreateNotification(ctx, last, core.NotificationProgress)
	require.NoError(t, err)
	_, err = s.CreateNotification(ctx, last, core.NotificationDiffDetected)
	require.NoError(t, err)

	states, err := s.BuildStatesAtCommit(ctx, f.project.ID, "f1")
	require.NoError(t, err)
	require.Len(t, states, 1, "only the latest build of a name counts")
	assert.Equal(t, last, states[0].Build.ID)
	assert.Equal(t, core.NotificationDiffDetected, states[0].Notification)
}

func TestStore_LatestApprovedMonitoringBuild(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := seed(t, ctx, s)
	builds := s.Builds()

	monitoringBuild := func(complete bool, validation core.ValidationStatus) *core.Build {
		b := &core.Build{ProjectID: f.project.ID, Name: "default", Mode: core.BuildModeMonitoring, CompareBucketID: f.buckets["c1"].ID}
		require.NoError(t, s.CreateBuild(ctx, b))
		_, err := s.InsertDiffs(ctx, []core.ScreenshotDiff{{BuildID: b.ID, JobStatus: core.JobStatusComplete, ValidationStatus: validation}})
		require.NoError(t, err)
		if complete {
			require.NoError(t, builds.SetJobStatus(ctx, b.ID, core.JobStatusProgress))
			require.NoError(t, builds.SetJobStatus(ctx, b.ID, core.JobStatusComplete))
		}
		return b
	}

	monitoringBuild(true, core.ValidationAccepted)
	t2 := monitoringBuild(true, core.ValidationAccepted)
	monitoringBuild(true, core.ValidationUnknown)
	monitoringBuild(false, core.ValidationAccepted)
	current := monitoringBuild(true, core.ValidationAccepted)

	ci := &core.Build{ProjectID: f.project.ID, Name: "default", Mode: core.BuildModeCI, CompareBucketID: f.buckets["c2"].ID}
	require.NoError(t, s.CreateBuild(ctx, ci))
	_, err := s.InsertDiffs(ctx, []core.ScreenshotDiff{{BuildID: ci.ID, JobStatus: core.JobStatusComplete, ValidationStatus: core.ValidationAccepted}})
	require.NoError(t, err)
	require.NoError(t, builds.SetJobStatus(ctx, ci.ID, core.JobStatusProgress))
	require.NoError(t, builds.SetJobStatus(ctx, ci.ID, core.JobStatusComplete))

	got, err := s.LatestApprovedMonitoringBuild(ctx, f.project.ID, "default", current.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, t2.ID, got.ID, "unapproved, incomplete, ci and excluded builds are passed over")

	got, err = s.LatestApprovedMonitoringBuild(ctx, f.project.ID, "other", current.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
