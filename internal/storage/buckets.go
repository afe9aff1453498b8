package storage

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/sevigo/shot-warden/internal/core"
)

var bucketColumns = []string{
	"id", "project_id", "name", `"commit"`, "branch", "mode", "complete", "screenshot_count", "created_at",
}

var screenshotColumns = []string{"id", "bucket_id", "test_id", "name", "file_id", "blob_key"}

func (s *Store) GetBucket(ctx context.Context, id int64) (*core.ScreenshotBucket, error) {
	var b core.ScreenshotBucket
	query := `SELECT ` + columns("", bucketColumns) + ` FROM screenshot_buckets WHERE id = $1`
	if err := s.get(ctx, &b, "screenshot bucket", id, query, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// FindBucketByCommits returns the eligible bucket whose commit has the lowest
// index in commits.
func (s *Store) FindBucketByCommits(ctx context.Context, q core.BucketQuery, commits []string) (*core.ScreenshotBucket, error) {
	if len(commits) == 0 {
		return nil, nil
	}
	query := `SELECT ` + columns("sb", bucketColumns) + `
		FROM screenshot_buckets sb
		JOIN unnest($1::text[]) WITH ORDINALITY AS ordering(sha, rank) ON sb."commit" = ordering.sha
		WHERE sb.project_id = $2 AND sb.name = $3 AND sb.mode = $4 AND sb.branch = $5
			AND sb.complete AND sb.id <> $6
		ORDER BY ordering.rank, sb.id DESC
		LIMIT 1`
	return find[core.ScreenshotBucket](ctx, s.db, query, pq.Array(commits), q.ProjectID, q.Name, q.Mode, q.Branch, q.ExcludeID)
}

// LatestBucketOnBranch returns the most recent eligible bucket.
func (s *Store) LatestBucketOnBranch(ctx context.Context, q core.BucketQuery) (*core.ScreenshotBucket, error) {
	query := `SELECT ` + columns("", bucketColumns) + `
		FROM screenshot_buckets
		WHERE project_id = $1 AND name = $2 AND mode = $3 AND branch = $4 AND complete AND id <> $5
		ORDER BY id DESC
		LIMIT 1`
	return find[core.ScreenshotBucket](ctx, s.db, query, q.ProjectID, q.Name, q.Mode, q.Branch, q.ExcludeID)
}

// CreateBucket inserts b and sets its id.
func (s *Store) CreateBucket(ctx context.Context, b *core.ScreenshotBucket) error {
	query := `INSERT INTO screenshot_buckets (project_id, name, "commit", branch, mode, complete, screenshot_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`
	err := s.db.QueryRowxContext(ctx, query, b.ProjectID, b.Name, b.Commit, b.Branch, b.Mode, b.Complete, b.ScreenshotCount).
		Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create screenshot bucket: %w", err)
	}
	return nil
}

// ListScreenshots returns the screenshots of a bucket ordered by name.
func (s *Store) ListScreenshots(ctx context.Context, bucketID int64) ([]core.Screenshot, error) {
	var out []core.Screenshot
	query := `SELECT ` + columns("", screenshotColumns) + ` FROM screenshots WHERE bucket_id = $1 ORDER BY name`
	if err := s.db.SelectContext(ctx, &out, query, bucketID); err != nil {
		return nil, fmt.Errorf("failed to list screenshots of bucket %d: %w", bucketID, err)
	}
	return out, nil
}

func (s *Store) GetScreenshot(ctx context.Context, id int64) (*core.Screenshot, error) {
	var sc core.Screenshot
	query := `SELECT ` + columns("", screenshotColumns) + ` FROM screenshots WHERE id = $1`
	if err := s.get(ctx, &sc, "screenshot", id, query, id); err != nil {
		return nil, err
	}
	return &sc, nil
}

// CreateScreenshot inserts sc and sets its id.
func (s *Store) CreateScreenshot(ctx context.Context, sc *core.Screenshot) error {
	query := `INSERT INTO screenshots (bucket_id, test_id, name, file_id, blob_key)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := s.db.QueryRowxContext(ctx, query, sc.BucketID, sc.TestID, sc.Name, sc.FileID, sc.BlobKey).Scan(&sc.ID); err != nil {
		return fmt.Errorf("failed to create screenshot %q: %w", sc.Name, err)
	}
	return nil
}
