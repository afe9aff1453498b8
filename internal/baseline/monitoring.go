package baseline

import (
	"context"
	"fmt"

	"github.com/sevigo/shot-warden/internal/core"
)

// monitoringStrategy follows the last human-approved snapshot instead of git.
type monitoringStrategy struct {
	store Store
}

func (s *monitoringStrategy) Name() string { return string(core.BuildModeMonitoring) }

func (s *monitoringStrategy) Detect(build *core.Build) bool {
	return build.Mode == core.BuildModeMonitoring
}

func (s *monitoringStrategy) Context(ctx context.Context, build *core.Build) (*Context, error) {
	return loadContext(ctx, s.store, build)
}

func (s *monitoringStrategy) Base(ctx context.Context, build *core.Build, _ *Context) (Result, error) {
	prev, err := s.store.LatestApprovedMonitoringBuild(ctx, build.ProjectID, build.Name, build.ID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to find approved monitoring build: %w", err)
	}
	if prev == nil {
		return Result{}, nil
	}
	bucket, err := s.store.GetBucket(ctx, prev.CompareBucketID)
	if err != nil {
		return Result{}, lookupError("bucket", prev.CompareBucketID, err)
	}
	return Result{BaseBucket: bucket}, nil
}

func (s *monitoringStrategy) BuildType(ctx context.Context, build *core.Build, res Result) (core.BuildType, error) {
	return typeFromResult(ctx, s.store, build, res)
}
