package baseline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/shot-warden/internal/core"
)

type fakeStore struct {
	projects map[int64]*core.Project
	buckets  []*core.ScreenshotBucket
	builds   []*core.Build
	// approved holds ids of builds with at least one accepted diff.
	approved map[int64]bool
}

func (s *fakeStore) GetProject(_ context.Context, id int64) (*core.Project, error) {
	if p, ok := s.projects[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("project %d: %w", id, core.ErrNotFound)
}

func (s *fakeStore) GetBucket(_ context.Context, id int64) (*core.ScreenshotBucket, error) {
	for _, b := range s.buckets {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, fmt.Errorf("bucket %d: %w", id, core.ErrNotFound)
}

func (s *fakeStore) eligible(q core.BucketQuery) []*core.ScreenshotBucket {
	var out []*core.ScreenshotBucket
	for _, b := range s.buckets {
		if b.ProjectID == q.ProjectID && b.Name == q.Name && b.Mode == q.Mode &&
			b.Branch == q.Branch && b.Complete && b.ID != q.ExcludeID {
			out = append(out, b)
		}
	}
	return out
}

func (s *fakeStore) FindBucketByCommits(_ context.Context, q core.BucketQuery, commits []string) (*core.ScreenshotBucket, error) {
	var best *core.ScreenshotBucket
	bestRank := len(commits)
	for _, b := range s.eligible(q) {
		if rank := slices.Index(commits, b.Commit); rank >= 0 && rank < bestRank {
			best, bestRank = b, rank
		}
	}
	return best, nil
}

func (s *fakeStore) LatestBucketOnBranch(_ context.Context, q core.BucketQuery) (*core.ScreenshotBucket, error) {
	var latest *core.ScreenshotBucket
	for _, b := range s.eligible(q) {
		if latest == nil || b.ID > latest.ID {
			latest = b
		}
	}
	return latest, nil
}

func (s *fakeStore) LatestApprovedMonitoringBuild(_ context.Context, projectID int64, name string, exclude int64) (*core.Build, error) {
	var latest *core.Build
	for _, b := range s.builds {
		if b.ProjectID != projectID || b.Name != name || b.Mode != core.BuildModeMonitoring || b.ID == exclude {
			continue
		}
		if b.JobStatus != core.JobStatusComplete || !s.approved[b.ID] {
			continue
		}
		if latest == nil || b.ID > latest.ID {
			latest = b
		}
	}
	return latest, nil
}

func (s *fakeStore) HasPriorBuild(_ context.Context, projectID int64, name string, before int64) (bool, error) {
	for _, b := range s.builds {
		if b.ProjectID == projectID && b.Name == name && b.ID < before {
			return true, nil
		}
	}
	return false, nil
}

type fakeHistory map[string][]string

func (h fakeHistory) ListCommits(_ context.Context, ref string, limit int) ([]core.Commit, error) {
	shas, ok := h[ref]
	if !ok {
		return nil, fmt.Errorf("ref %s: %w", ref, core.ErrNotFound)
	}
	out := make([]core.Commit, 0, len(shas))
	for _, sha := range shas[:min(limit, len(shas))] {
		out = append(out, core.Commit{SHA: sha})
	}
	return out, nil
}

type staticHistories struct {
	history core.GitHistory
	err     error
}

func (s staticHistories) History(context.Context, *core.Project) (core.GitHistory, error) {
	return s.history, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

var project = &core.Project{ID: 1, Name: "web", ReferenceBranch: "main"}

func ciBucket(id int64, branch, commit string) *core.ScreenshotBucket {
	return &core.ScreenshotBucket{ID: id, ProjectID: 1, Name: "default", Branch: branch, Commit: commit, Mode: core.BuildModeCI, Complete: true}
}

func TestResolver_CIPicksAncestorOverUnrelatedCommit(t *testing.T) {
	store := &fakeStore{
		projects: map[int64]*core.Project{1: project},
		buckets: []*core.ScreenshotBucket{
			ciBucket(10, "main", "A"),
			ciBucket(11, "main", "B"),
			ciBucket(20, "feature", "F2"),
		},
		builds: []*core.Build{{ID: 1, ProjectID: 1, Name: "default", Mode: core.BuildModeCI}},
	}
	history := fakeHistory{
		"F2":   {"F2", "F1", "A", "Z"},
		"main": {"B", "A", "Z"},
	}
	r := NewResolver(store, staticHistories{history: history}, nil, 0, discardLogger())

	build := &core.Build{ID: 2, ProjectID: 1, Name: "default", Mode: core.BuildModeCI, CompareBucketID: 20}
	res, err := r.Resolve(context.Background(), build)
	require.NoError(t, err)

	require.NotNil(t, res.BaseBucket)
	assert.Equal(t, int64(10), res.BaseBucket.ID, "A is shared by both histories, B is not")
	assert.Equal(t, core.BuildTypeCheck, res.Type)
	assert.Equal(t, "main", res.BaseBranch)
	assert.Equal(t, ResolvedFromProject, res.BaseBranchResolvedFrom)
}

func TestResolver_CIFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		buckets    []*core.ScreenshotBucket
		history    fakeHistory
		baseBranch *string
		priorBuild bool
		wantBucket int64
		wantType   core.BuildType
		wantFrom   string
	}{
		{
			name:       "no common commit uses the base list",
			buckets:    []*core.ScreenshotBucket{ciBucket(10, "main", "M1"), ciBucket(11, "main", "M2"), ciBucket(20, "feature", "F1")},
			history:    fakeHistory{"F1": {"F1", "X"}, "main": {"M2", "M1"}},
			wantBucket: 11,
			wantType:   core.BuildTypeCheck,
			wantFrom:   ResolvedFromProject,
		},
		{
			name:       "candidates without a bucket fall back to the latest on the branch",
			buckets:    []*core.ScreenshotBucket{ciBucket(10, "main", "OLD"), ciBucket(11, "main", "OLDER"), ciBucket(20, "feature", "F1")},
			history:    fakeHistory{"F1": {"F1", "A"}, "main": {"A"}},
			wantBucket: 11,
			wantType:   core.BuildTypeCheck,
			wantFrom:   ResolvedFromProject,
		},
		{
			name:       "explicit base branch wins over the project",
			buckets:    []*core.ScreenshotBucket{ciBucket(10, "main", "A"), ciBucket(12, "release", "R"), ciBucket(20, "feature", "F1")},
			history:    fakeHistory{"F1": {"F1", "R", "A"}, "release": {"R", "A"}},
			baseBranch: ptr("release"),
			wantBucket: 12,
			wantType:   core.BuildTypeCheck,
			wantFrom:   ResolvedFromUser,
		},
		{
			name:     "first build of a name is a reference",
			buckets:  []*core.ScreenshotBucket{ciBucket(20, "main", "A")},
			history:  fakeHistory{"A": {"A"}, "main": {"A"}},
			wantType: core.BuildTypeReference,
			wantFrom: ResolvedFromProject,
		},
		{
			name:       "nothing found after earlier builds is an orphan",
			buckets:    []*core.ScreenshotBucket{ciBucket(20, "feature", "F1")},
			history:    fakeHistory{"F1": {"F1"}},
			priorBuild: true,
			wantType:   core.BuildTypeOrphan,
			wantFrom:   ResolvedFromProject,
		},
		{
			name:     "incomplete buckets are ignored",
			buckets:  []*core.ScreenshotBucket{{ID: 10, ProjectID: 1, Name: "default", Branch: "main", Commit: "A", Mode: core.BuildModeCI}, ciBucket(20, "feature", "F1")},
			history:  fakeHistory{"F1": {"F1", "A"}, "main": {"A"}},
			wantType: core.BuildTypeReference,
			wantFrom: ResolvedFromProject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{projects: map[int64]*core.Project{1: project}, buckets: tt.buckets}
			if tt.priorBuild {
				store.builds = []*core.Build{{ID: 1, ProjectID: 1, Name: "default"}}
			}
			r := NewResolver(store, staticHistories{history: tt.history}, nil, 0, discardLogger())
			build := &core.Build{ID: 5, ProjectID: 1, Name: "default", Mode: core.BuildModeCI, CompareBucketID: 20, BaseBranch: tt.baseBranch}

			res, err := r.Resolve(context.Background(), build)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, res.Type)
			assert.Equal(t, tt.wantFrom, res.BaseBranchResolvedFrom)
			if tt.wantBucket == 0 {
				assert.Nil(t, res.BaseBucket)
				return
			}
			require.NotNil(t, res.BaseBucket)
			assert.Equal(t, tt.wantBucket, res.BaseBucket.ID)
		})
	}
}

func TestResolver_CIHistoryErrorIsRetryable(t *testing.T) {
	store := &fakeStore{projects: map[int64]*core.Project{1: project}, buckets: []*core.ScreenshotBucket{ciBucket(20, "feature", "F1")}}
	r := NewResolver(store, staticHistories{err: errors.New("rate limited")}, nil, 0, discardLogger())

	_, err := r.Resolve(context.Background(), &core.Build{ID: 5, ProjectID: 1, Name: "default", Mode: core.BuildModeCI, CompareBucketID: 20})
	require.Error(t, err)
	assert.Equal(t, core.KindRetryable, core.KindOf(err))
}

func TestResolver_MonitoringUsesLatestApprovedBuild(t *testing.T) {
	monitoringBucket := func(id int64) *core.ScreenshotBucket {
		return &core.ScreenshotBucket{ID: id, ProjectID: 1, Name: "default", Mode: core.BuildModeMonitoring, Complete: true}
	}
	monitoringBuild := func(id, bucket int64) *core.Build {
		return &core.Build{ID: id, ProjectID: 1, Name: "default", Mode: core.BuildModeMonitoring, JobStatus: core.JobStatusComplete, CompareBucketID: bucket}
	}
	store := &fakeStore{
		projects: map[int64]*core.Project{1: project},
		buckets:  []*core.ScreenshotBucket{monitoringBucket(101), monitoringBucket(102), monitoringBucket(103), monitoringBucket(104)},
		builds:   []*core.Build{monitoringBuild(1, 101), monitoringBuild(2, 102), monitoringBuild(3, 103)},
		approved: map[int64]bool{1: true, 2: true},
	}
	r := NewResolver(store, staticHistories{}, nil, 0, discardLogger())

	build := &core.Build{ID: 4, ProjectID: 1, Name: "default", Mode: core.BuildModeMonitoring, CompareBucketID: 104}
	res, err := r.Resolve(context.Background(), build)
	require.NoError(t, err)
	require.NotNil(t, res.BaseBucket)
	assert.Equal(t, int64(102), res.BaseBucket.ID, "t3 is not approved, t2 is the latest approved")
	assert.Equal(t, core.BuildTypeCheck, res.Type)
	assert.Empty(t, res.BaseBranch)
}

func TestResolver_MonitoringWithoutApprovalIsOrphan(t *testing.T) {
	store := &fakeStore{
		projects: map[int64]*core.Project{1: project},
		buckets:  []*core.ScreenshotBucket{{ID: 104, ProjectID: 1, Name: "default", Mode: core.BuildModeMonitoring}},
		builds:   []*core.Build{{ID: 3, ProjectID: 1, Name: "default", Mode: core.BuildModeMonitoring, JobStatus: core.JobStatusComplete}},
	}
	r := NewResolver(store, staticHistories{}, nil, 0, discardLogger())

	res, err := r.Resolve(context.Background(), &core.Build{ID: 4, ProjectID: 1, Name: "default", Mode: core.BuildModeMonitoring, CompareBucketID: 104})
	require.NoError(t, err)
	assert.Nil(t, res.BaseBucket)
	assert.Equal(t, core.BuildTypeOrphan, res.Type)
}

func TestResolver_UnknownModeIsUnretryable(t *testing.T) {
	r := NewResolver(&fakeStore{}, staticHistories{}, nil, 0, discardLogger())

	_, err := r.Resolve(context.Background(), &core.Build{ID: 1, Mode: "nightly"})
	require.Error(t, err)
	assert.Equal(t, core.KindUnretryable, core.KindOf(err))
}

func TestResolver_MissingCompareBucketIsUnretryable(t *testing.T) {
	store := &fakeStore{projects: map[int64]*core.Project{1: project}}
	r := NewResolver(store, staticHistories{}, nil, 0, discardLogger())

	_, err := r.Resolve(context.Background(), &core.Build{ID: 1, ProjectID: 1, Mode: core.BuildModeCI, CompareBucketID: 99})
	require.Error(t, err)
	assert.Equal(t, core.KindUnretryable, core.KindOf(err))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestResolver_SkipRuleBypassesResolution(t *testing.T) {
	rules, err := ParseRules([]byte(`
skip:
  - project: web
    branch: "renovate/*"
`))
	require.NoError(t, err)

	store := &fakeStore{
		projects: map[int64]*core.Project{1: project},
		buckets:  []*core.ScreenshotBucket{ciBucket(10, "main", "A"), ciBucket(20, "renovate/deps", "R1")},
	}
	// A nil history would panic if the CI strategy ran.
	r := NewResolver(store, staticHistories{}, rules, 0, discardLogger())

	res, err := r.Resolve(context.Background(), &core.Build{ID: 3, ProjectID: 1, Name: "default", Mode: core.BuildModeCI, CompareBucketID: 20})
	require.NoError(t, err)
	assert.Equal(t, core.BuildTypeSkipped, res.Type)
	assert.Nil(t, res.BaseBucket)
}

func TestParseRules(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
		match   [3]string
		want    bool
	}{
		{name: "build name glob", doc: "skip:\n  - buildName: \"storybook-*\"\n", match: [3]string{"web", "storybook-dark", "main"}, want: true},
		{name: "glob does not cross slash", doc: "skip:\n  - branch: \"dependabot*\"\n", match: [3]string{"web", "default", "dependabot/npm"}, want: false},
		{name: "project must match", doc: "skip:\n  - project: api\n    buildName: \"*\"\n", match: [3]string{"web", "default", "main"}, want: false},
		{name: "empty document", doc: "", match: [3]string{"web", "default", "main"}, want: false},
		{name: "catch-all rule rejected", doc: "skip:\n  - {}\n", wantErr: true},
		{name: "bad pattern rejected", doc: "skip:\n  - branch: \"[\"\n", wantErr: true},
		{name: "invalid yaml", doc: "skip: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := ParseRules([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			_, ok := rules.Match(tt.match[0], tt.match[1], tt.match[2])
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCandidateCommits(t *testing.T) {
	assert.Equal(t, []string{"C", "A"}, candidateCommits([]string{"H", "C", "A"}, []string{"A", "B", "C"}))
	assert.Equal(t, []string{"B", "A"}, candidateCommits([]string{"H"}, []string{"B", "A"}))
	assert.Empty(t, candidateCommits(nil, nil))
}
