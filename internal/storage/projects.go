package storage

import (
	"context"
	"fmt"

	"github.com/sevigo/shot-warden/internal/core"
)

var projectColumns = []string{
	"id", "name", "provider", "repo_owner", "repo_name", "gitlab_project_id",
	"installation_id", "reference_branch", "summary_check",
}

func (s *Store) GetProject(ctx context.Context, id int64) (*core.Project, error) {
	var p core.Project
	query := `SELECT ` + columns("", projectColumns) + ` FROM projects WHERE id = $1`
	if err := s.get(ctx, &p, "project", id, query, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProjectByRepo returns nil when no project tracks the repository.
func (s *Store) FindProjectByRepo(ctx context.Context, provider core.Provider, owner, repo string) (*core.Project, error) {
	query := `SELECT ` + columns("", projectColumns) + ` FROM projects
		WHERE provider = $1 AND lower(repo_owner) = lower($2) AND lower(repo_name) = lower($3)`
	p, err := find[core.Project](ctx, s.db, query, provider, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to find project %s/%s: %w", owner, repo, err)
	}
	return p, nil
}

// CreateProject inserts p and sets its id.
func (s *Store) CreateProject(ctx context.Context, p *core.Project) error {
	if p.SummaryCheck == "" {
		p.SummaryCheck = core.SummaryCheckAuto
	}
	query := `INSERT INTO projects (name, provider, repo_owner, repo_name, gitlab_project_id, installation_id, reference_branch, summary_check)
		VALUES (:name, :provider, :repo_owner, :repo_name, :gitlab_project_id, :installation_id, :reference_branch, :summary_check)
		RETURNING id`
	rows, err := s.db.NamedQueryContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&p.ID)
	}
	return rows.Err()
}
