package baseline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/sevigo/shot-warden/internal/core"
)

type ciStrategy struct {
	store     Store
	histories HistoryProvider
	limit     int
	logger    *slog.Logger
}

func (s *ciStrategy) Name() string { return string(core.BuildModeCI) }

func (s *ciStrategy) Detect(build *core.Build) bool { return build.Mode == core.BuildModeCI }

func (s *ciStrategy) Context(ctx context.Context, build *core.Build) (*Context, error) {
	return loadContext(ctx, s.store, build)
}

// Base picks the base-branch bucket closest to the merge base of the compare commit.
func (s *ciStrategy) Base(ctx context.Context, build *core.Build, sctx *Context) (Result, error) {
	res := Result{}
	switch {
	case build.BaseBranch != nil && *build.BaseBranch != "":
		res.BaseBranch, res.BaseBranchResolvedFrom = *build.BaseBranch, ResolvedFromUser
	case sctx.Project.ReferenceBranch != "":
		res.BaseBranch, res.BaseBranchResolvedFrom = sctx.Project.ReferenceBranch, ResolvedFromProject
	default:
		return res, nil
	}

	history, err := s.histories.History(ctx, sctx.Project)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open history of %s: %w", sctx.Project.FullName(), err)
	}
	head, err := s.commits(ctx, history, sctx.Compare.Commit)
	if err != nil {
		return Result{}, err
	}
	base, err := s.commits(ctx, history, res.BaseBranch)
	if err != nil {
		return Result{}, err
	}

	q := core.BucketQuery{
		ProjectID: build.ProjectID,
		Name:      build.Name,
		Mode:      core.BuildModeCI,
		Branch:    res.BaseBranch,
		ExcludeID: sctx.Compare.ID,
	}

	if candidates := candidateCommits(head, base); len(candidates) > 0 {
		bucket, err := s.store.FindBucketByCommits(ctx, q, candidates)
		if err != nil {
			return Result{}, fmt.Errorf("failed to find bucket by commits: %w", err)
		}
		if bucket != nil {
			res.BaseBucket = bucket
			return res, nil
		}
	}

	bucket, err := s.store.LatestBucketOnBranch(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("failed to find latest bucket on %s: %w", res.BaseBranch, err)
	}
	res.BaseBucket = bucket
	return res, nil
}

func (s *ciStrategy) BuildType(ctx context.Context, build *core.Build, res Result) (core.BuildType, error) {
	return typeFromResult(ctx, s.store, build, res)
}

// commits lists the shas reachable from ref. An unknown ref has no history.
func (s *ciStrategy) commits(ctx context.Context, history core.GitHistory, ref string) ([]string, error) {
	list, err := history.ListCommits(ctx, ref, s.limit)
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrStaleRef) {
		s.logger.Warn("ref not found in history", "ref", ref)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list commits of %s: %w", ref, err)
	}
	return lo.Map(list, func(c core.Commit, _ int) string { return c.SHA }), nil
}

// candidateCommits intersects head with base in head order. With no common
// commit every base commit is a candidate.
func candidateCommits(head, base []string) []string {
	inBase := lo.SliceToMap(base, func(sha string) (string, struct{}) { return sha, struct{}{} })
	common := lo.Filter(head, func(sha string, _ int) bool {
		_, ok := inBase[sha]
		return ok
	})
	if len(common) == 0 {
		return lo.Uniq(base)
	}
	return lo.Uniq(common)
}
