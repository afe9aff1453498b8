package storage

import (
	"context"
	"fmt"

	"github.com/sevigo/shot-warden/internal/core"
)

var pullRequestColumns = []string{"id", "project_id", "number", "comment_id", "comment_deleted", "merged", "state"}

// EnsurePullRequest returns the tracked pull request, creating it when needed.
func (s *Store) EnsurePullRequest(ctx context.Context, projectID int64, number int) (*core.PullRequest, error) {
	query := `INSERT INTO pull_requests (project_id, number) VALUES ($1, $2)
		ON CONFLICT (project_id, number) DO UPDATE SET number = EXCLUDED.number
		RETURNING ` + columns("", pullRequestColumns)
	var pr core.PullRequest
	if err := s.db.GetContext(ctx, &pr, query, projectID, number); err != nil {
		return nil, fmt.Errorf("failed to ensure pull request #%d: %w", number, err)
	}
	return &pr, nil
}

func (s *Store) GetPullRequest(ctx context.Context, id int64) (*core.PullRequest, error) {
	var pr core.PullRequest
	query := `SELECT ` + columns("", pullRequestColumns) + ` FROM pull_requests WHERE id = $1`
	if err := s.get(ctx, &pr, "pull request", id, query, id); err != nil {
		return nil, err
	}
	return &pr, nil
}

func (s *Store) SetPullRequestComment(ctx context.Context, id, commentID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pull_requests SET comment_id = $2 WHERE id = $1`, id, commentID)
	if err != nil {
		return fmt.Errorf("failed to store comment of pull request %d: %w", id, err)
	}
	return nil
}

func (s *Store) MarkCommentDeleted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pull_requests SET comment_deleted = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark comment of pull request %d deleted: %w", id, err)
	}
	return nil
}

// UpdatePullRequestState records the provider-side state of a pull request,
// creating the row when it is not tracked yet.
func (s *Store) UpdatePullRequestState(ctx context.Context, projectID int64, number int, state string, merged bool) error {
	query := `INSERT INTO pull_requests (project_id, number, state, merged) VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, number) DO UPDATE SET state = EXCLUDED.state, merged = EXCLUDED.merged`
	if _, err := s.db.ExecContext(ctx, query, projectID, number, state, merged); err != nil {
		return fmt.Errorf("failed to update pull request #%d: %w", number, err)
	}
	return nil
}
