package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/shot-warden/internal/core"
	"github.com/sevigo/shot-warden/internal/notify"
)

// maxDescriptionLength is the GitHub limit, in characters, on commit status descriptions.
const maxDescriptionLength = 140

// Provider adapts GitHub to the notification and history collaborators.
type Provider struct {
	clients ClientFactory
	logger  *slog.Logger
}

// NewProvider creates a GitHub Provider.
func NewProvider(clients ClientFactory, logger *slog.Logger) *Provider {
	return &Provider{clients: clients, logger: logger.With("provider", "github")}
}

func (p *Provider) client(ctx context.Context, project *core.Project) (Client, error) {
	c, err := p.clients.ForInstallation(ctx, project.InstallationID)
	if err != nil {
		return nil, core.Unretryable(fmt.Errorf("failed to get client for %s: %w", project.FullName(), err))
	}
	return c, nil
}

// SetCommitStatus posts status with the GitHub state of its payload.
func (p *Provider) SetCommitStatus(ctx context.Context, project *core.Project, status notify.CommitStatus) error {
	c, err := p.client(ctx, project)
	if err != nil {
		return err
	}
	repoStatus := &github.RepoStatus{
		State:       github.Ptr(status.Payload.GitHubState),
		Description: github.Ptr(truncate(status.Payload.Description, maxDescriptionLength)),
		Context:     github.Ptr(status.Context),
	}
	if status.TargetURL != "" {
		repoStatus.TargetURL = github.Ptr(status.TargetURL)
	}
	return mapError(c.CreateStatus(ctx, project.RepoOwner, project.RepoName, status.SHA, repoStatus))
}

// CreateComment posts the pull request comment.
func (p *Provider) CreateComment(ctx context.Context, project *core.Project, prNumber int, body string) (int64, error) {
	c, err := p.client(ctx, project)
	if err != nil {
		return 0, err
	}
	id, err := c.CreateComment(ctx, project.RepoOwner, project.RepoName, prNumber, body)
	return id, mapError(err)
}

// UpdateComment edits the pull request comment.
func (p *Provider) UpdateComment(ctx context.Context, project *core.Project, _ int, commentID int64, body string) error {
	c, err := p.client(ctx, project)
	if err != nil {
		return err
	}
	return mapError(c.EditComment(ctx, project.RepoOwner, project.RepoName, commentID, body))
}

// History returns the remote commit history of the project's repository.
func (p *Provider) History(ctx context.Context, project *core.Project) (core.GitHistory, error) {
	c, err := p.client(ctx, project)
	if err != nil {
		return nil, err
	}
	return &history{client: c, owner: project.RepoOwner, repo: project.RepoName}, nil
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

type history struct {
	client      Client
	owner, repo string
}

func (h *history) ListCommits(ctx context.Context, ref string, limit int) ([]core.Commit, error) {
	shas, err := h.client.ListCommits(ctx, h.owner, h.repo, ref, limit)
	if err != nil {
		return nil, mapError(err)
	}
	commits := make([]core.Commit, len(shas))
	for i, sha := range shas {
		commits[i] = core.Commit{SHA: sha}
	}
	return commits, nil
}

// mapError translates GitHub responses into the core sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return err
	}
	switch ghErr.Response.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", core.ErrNotFound, ghErr.Message)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", core.ErrStaleRef, ghErr.Message)
	case http.StatusUnauthorized:
		return core.Unretryable(err)
	default:
		return err
	}
}
