// Package baseline decides which earlier screenshot bucket a build is compared against.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sevigo/shot-warden/internal/core"
)

// Base branch origins.
const (
	ResolvedFromUser    = "user"
	ResolvedFromProject = "project"
)

// DefaultCommitLimit is how many commits are read from each side of a CI comparison.
const DefaultCommitLimit = 100

// Store is the persistence the strategies read from. Find and Latest lookups
// return nil without an error when nothing matches.
type Store interface {
	GetProject(ctx context.Context, id int64) (*core.Project, error)
	GetBucket(ctx context.Context, id int64) (*core.ScreenshotBucket, error)
	// FindBucketByCommits returns the bucket whose commit comes first in commits.
	FindBucketByCommits(ctx context.Context, q core.BucketQuery, commits []string) (*core.ScreenshotBucket, error)
	LatestBucketOnBranch(ctx context.Context, q core.BucketQuery) (*core.ScreenshotBucket, error)
	LatestApprovedMonitoringBuild(ctx context.Context, projectID int64, name string, excludeBuildID int64) (*core.Build, error)
	HasPriorBuild(ctx context.Context, projectID int64, name string, beforeBuildID int64) (bool, error)
}

// HistoryProvider opens the git history of a project's repository.
type HistoryProvider interface {
	History(ctx context.Context, project *core.Project) (core.GitHistory, error)
}

// Context is what a strategy loads once before searching for a base.
type Context struct {
	Project *core.Project
	Compare *core.ScreenshotBucket
}

// Result is the base found by a strategy. BaseBucket is nil when nothing qualified.
type Result struct {
	BaseBucket             *core.ScreenshotBucket
	BaseBranch             string
	BaseBranchResolvedFrom string
}

// Strategy resolves the baseline for one family of builds.
type Strategy interface {
	Name() string
	Detect(build *core.Build) bool
	Context(ctx context.Context, build *core.Build) (*Context, error)
	Base(ctx context.Context, build *core.Build, sctx *Context) (Result, error)
	BuildType(ctx context.Context, build *core.Build, res Result) (core.BuildType, error)
}

// Resolution is applied to the build row by the orchestrator.
type Resolution struct {
	Type core.BuildType
	Result
}

// Resolver dispatches a build to its strategy.
type Resolver struct {
	strategies []Strategy
	rules      *Rules
	logger     *slog.Logger
}

// NewResolver registers the CI and monitoring strategies, in that order.
func NewResolver(store Store, histories HistoryProvider, rules *Rules, commitLimit int, logger *slog.Logger) *Resolver {
	if commitLimit <= 0 {
		commitLimit = DefaultCommitLimit
	}
	if rules == nil {
		rules = &Rules{}
	}
	logger = logger.With("component", "baseline")
	return &Resolver{
		strategies: []Strategy{
			&ciStrategy{store: store, histories: histories, limit: commitLimit, logger: logger},
			&monitoringStrategy{store: store},
		},
		rules:  rules,
		logger: logger,
	}
}

// Resolve finds the base bucket and build type of build. Skip rules are
// evaluated before any base search.
func (r *Resolver) Resolve(ctx context.Context, build *core.Build) (*Resolution, error) {
	strategy, err := r.strategyFor(build)
	if err != nil {
		return nil, err
	}

	sctx, err := strategy.Context(ctx, build)
	if err != nil {
		return nil, err
	}

	if rule, ok := r.rules.Match(sctx.Project.Name, build.Name, sctx.Compare.Branch); ok {
		r.logger.Info("build skipped by rule", "build_id", build.ID, "rule", rule.String())
		return &Resolution{Type: core.BuildTypeSkipped}, nil
	}

	res, err := strategy.Base(ctx, build, sctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base with %s strategy: %w", strategy.Name(), err)
	}
	typ, err := strategy.BuildType(ctx, build, res)
	if err != nil {
		return nil, err
	}

	r.logger.Info("baseline resolved",
		"build_id", build.ID,
		"strategy", strategy.Name(),
		"type", typ,
		"base_bucket_id", bucketID(res.BaseBucket),
	)
	return &Resolution{Type: typ, Result: res}, nil
}

func (r *Resolver) strategyFor(build *core.Build) (Strategy, error) {
	switch build.Mode {
	case core.BuildModeCI, core.BuildModeMonitoring:
	default:
		return nil, core.Unretryablef("unknown build mode %q", build.Mode)
	}
	for _, s := range r.strategies {
		if s.Detect(build) {
			return s, nil
		}
	}
	return nil, core.Unretryablef("no strategy detected build %d", build.ID)
}

// loadContext reads the project and compare bucket shared by every strategy.
func loadContext(ctx context.Context, store Store, build *core.Build) (*Context, error) {
	project, err := store.GetProject(ctx, build.ProjectID)
	if err != nil {
		return nil, lookupError("project", build.ProjectID, err)
	}
	compare, err := store.GetBucket(ctx, build.CompareBucketID)
	if err != nil {
		return nil, lookupError("compare bucket", build.CompareBucketID, err)
	}
	return &Context{Project: project, Compare: compare}, nil
}

// typeFromResult derives check, orphan or reference from a base search.
func typeFromResult(ctx context.Context, store Store, build *core.Build, res Result) (core.BuildType, error) {
	if res.BaseBucket != nil {
		return core.BuildTypeCheck, nil
	}
	prior, err := store.HasPriorBuild(ctx, build.ProjectID, build.Name, build.ID)
	if err != nil {
		return "", fmt.Errorf("failed to look up prior builds: %w", err)
	}
	if !prior {
		return core.BuildTypeReference, nil
	}
	return core.BuildTypeOrphan, nil
}

func lookupError(what string, id int64, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return core.Unretryable(fmt.Errorf("%s %d: %w", what, id, err))
	}
	return fmt.Errorf("failed to load %s %d: %w", what, id, err)
}

func bucketID(b *core.ScreenshotBucket) int64 {
	if b == nil {
		return 0
	}
	return b.ID
}
