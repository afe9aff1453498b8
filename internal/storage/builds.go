package storage

import (
	"context"
	"fmt"

	"github.com/sevigo/shot-warden/internal/baseline"
	"github.com/sevigo/shot-warden/internal/core"
	"github.com/sevigo/shot-warden/internal/notify"
)

var buildColumns = []string{
	"id", "project_id", "name", "mode", "job_status", "conclusion", "type",
	"base_bucket_id", "compare_bucket_id", "base_branch", "base_branch_resolved_from",
	"external_id", "shard_count", "pr_number", "created_at",
}

func (s *Store) GetBuild(ctx context.Context, id int64) (*core.Build, error) {
	var b core.Build
	query := `SELECT ` + columns("", buildColumns) + ` FROM builds WHERE id = $1`
	if err := s.get(ctx, &b, "build", id, query, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBuild inserts a pending build and sets its id.
func (s *Store) CreateBuild(ctx context.Context, b *core.Build) error {
	if b.JobStatus == "" {
		b.JobStatus = core.JobStatusPending
	}
	query := `INSERT INTO builds (project_id, name, mode, job_status, compare_bucket_id, base_branch, base_branch_resolved_from, external_id, shard_count, pr_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at`
	err := s.db.QueryRowxContext(ctx, query,
		b.ProjectID, b.Name, b.Mode, b.JobStatus, b.CompareBucketID, b.BaseBranch,
		b.BaseBranchResolvedFrom, b.ExternalID, b.ShardCount, b.PRNumber,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}
	return nil
}

// ApplyResolution stores the resolved type and base of a build.
func (s *Store) ApplyResolution(ctx context.Context, buildID int64, res *baseline.Resolution) error {
	var baseID *int64
	if res.BaseBucket != nil {
		baseID = &res.BaseBucket.ID
	}
	query := `UPDATE builds
		SET type = $2, base_bucket_id = $3,
			base_branch = COALESCE(NULLIF($4, ''), base_branch),
			base_branch_resolved_from = COALESCE(NULLIF($5, ''), base_branch_resolved_from),
			updated_at = now()
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, buildID, res.Type, baseID, res.BaseBranch, res.BaseBranchResolvedFrom)
	if err != nil {
		return fmt.Errorf("failed to store baseline of build %d: %w", buildID, err)
	}
	return nil
}

// LatestApprovedMonitoringBuild returns the newest complete monitoring build
// with at least one accepted diff.
func (s *Store) LatestApprovedMonitoringBuild(ctx context.Context, projectID int64, name string, excludeBuildID int64) (*core.Build, error) {
	query := `SELECT ` + columns("b", buildColumns) + `
		FROM builds b
		WHERE b.project_id = $1 AND b.name = $2 AND b.mode = 'monitoring'
			AND b.job_status = 'complete' AND b.id <> $3
			AND EXISTS (
				SELECT 1 FROM screenshot_diffs d
				WHERE d.build_id = b.id AND d.validation_status = 'accepted'
			)
		ORDER BY b.id DESC
		LIMIT 1`
	return find[core.Build](ctx, s.db, query, projectID, name, excludeBuildID)
}

// HasPriorBuild reports whether a build with the same name was created before beforeBuildID.
func (s *Store) HasPriorBuild(ctx context.Context, projectID int64, name string, beforeBuildID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM builds WHERE project_id = $1 AND name = $2 AND id < $3)`
	if err := s.db.GetContext(ctx, &exists, query, projectID, name, beforeBuildID); err != nil {
		return false, fmt.Errorf("failed to look up prior builds: %w", err)
	}
	return exists, nil
}

// SetConclusion records the conclusion once. It reports whether this call set it.
func (s *Store) SetConclusion(ctx context.Context, buildID int64, c core.Conclusion) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE builds SET conclusion = $2, updated_at = now() WHERE id = $1 AND conclusion IS NULL`,
		buildID, c)
	if err != nil {
		return false, fmt.Errorf("failed to conclude build %d: %w", buildID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type buildStateRow struct {
	core.Build
	Notification core.NotificationType `db:"notification"`
	notify.DiffStats
}

// BuildStatesAtCommit returns the latest build of every name whose compare
// bucket is at commit, with its latest notification and diff counts.
func (s *Store) BuildStatesAtCommit(ctx context.Context, projectID int64, commit string) ([]notify.BuildState, error) {
	query := `SELECT DISTINCT ON (b.name) ` + columns("b", buildColumns) + `,
			COALESCE(n.type, 'queued') AS notification,
			stats.changed, stats.added, stats.removed, stats.unchanged
		FROM builds b
		JOIN screenshot_buckets sb ON sb.id = b.compare_bucket_id
		LEFT JOIN LATERAL (
			SELECT type FROM build_notifications
			WHERE build_id = b.id
			ORDER BY id DESC
			LIMIT 1
		) n ON true
		CROSS JOIN LATERAL (
			SELECT
				count(*) FILTER (WHERE base_screenshot_id IS NOT NULL AND compare_screenshot_id IS NOT NULL AND score > 0) AS changed,
				count(*) FILTER (WHERE base_screenshot_id IS NULL) AS added,
				count(*) FILTER (WHERE compare_screenshot_id IS NULL) AS removed,
				count(*) FILTER (WHERE score = 0) AS unchanged
			FROM screenshot_diffs
			WHERE build_id = b.id
		) stats
		WHERE b.project_id = $1 AND sb."commit" = $2
		ORDER BY b.name, b.id DESC`

	var rows []buildStateRow
	if err := s.db.SelectContext(ctx, &rows, query, projectID, commit); err != nil {
		return nil, fmt.Errorf("failed to load build states at %s: %w", commit, err)
	}
	states := make([]notify.BuildState, len(rows))
	for i := range rows {
		states[i] = notify.BuildState{Build: &rows[i].Build, Notification: rows[i].Notification, Stats: rows[i].DiffStats}
	}
	return states, nil
}
