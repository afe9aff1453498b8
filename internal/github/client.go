// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"context"
	"log/slog"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
)

// maxCommitsPerPage is the GitHub page size ceiling for commit listings.
const maxCommitsPerPage = 100

// Client defines the GitHub operations the pipeline needs: commit statuses,
// issue comments on pull requests and commit history.
//
//go:generate mockgen -destination=../../mocks/mock_github_client.go -package=mocks . Client
type Client interface {
	CreateStatus(ctx context.Context, owner, repo, ref string, status *github.RepoStatus) error
	CreateComment(ctx context.Context, owner, repo string, number int, body string) (int64, error)
	EditComment(ctx context.Context, owner, repo string, commentID int64, body string) error
	ListCommits(ctx context.Context, owner, repo, sha string, limit int) ([]string, error)
}

type gitHubClient struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHubClient wraps the official go-github client to provide a focused,
// testable interface for application-specific GitHub operations.
func NewGitHubClient(client *github.Client, logger *slog.Logger) Client {
	return &gitHubClient{client: client, logger: logger}
}

// NewPATClient creates a new GitHub client authenticated with a Personal Access Token (PAT).
// This is useful for CLI tools or local development where an App installation is not available.
func NewPATClient(ctx context.Context, token string, logger *slog.Logger) Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	return NewGitHubClient(github.NewClient(tc), logger)
}

// CreateStatus posts a commit status on ref.
func (g *gitHubClient) CreateStatus(ctx context.Context, owner, repo, ref string, status *github.RepoStatus) error {
	_, _, err := g.client.Repositories.CreateStatus(ctx, owner, repo, ref, status)
	if err != nil {
		g.logger.Error("failed to create commit status", "owner", owner, "repo", repo, "ref", ref, "context", status.GetContext(), "error", err)
	}
	return err
}

// CreateComment creates a new comment on a pull request and returns its id.
func (g *gitHubClient) CreateComment(ctx context.Context, owner, repo string, number int, body string) (int64, error) {
	comment := &github.IssueComment{Body: &body}
	created, _, err := g.client.Issues.CreateComment(ctx, owner, repo, number, comment)
	if err != nil {
		g.logger.Error("failed to create comment", "owner", owner, "repo", repo, "pr", number, "error", err)
		return 0, err
	}
	return created.GetID(), nil
}

// EditComment replaces the body of an existing comment.
func (g *gitHubClient) EditComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	comment := &github.IssueComment{Body: &body}
	_, _, err := g.client.Issues.EditComment(ctx, owner, repo, commentID, comment)
	if err != nil {
		g.logger.Error("failed to edit comment", "owner", owner, "repo", repo, "comment_id", commentID, "error", err)
	}
	return err
}

// ListCommits returns up to limit commit shas reachable from sha, newest
// first. It follows pagination until the limit is reached.
func (g *gitHubClient) ListCommits(ctx context.Context, owner, repo, sha string, limit int) ([]string, error) {
	opts := &github.CommitsListOptions{
		SHA:         sha,
		ListOptions: github.ListOptions{PerPage: min(limit, maxCommitsPerPage)},
	}

	shas := make([]string, 0, limit)
	for len(shas) < limit {
		commits, resp, err := g.client.Repositories.ListCommits(ctx, owner, repo, opts)
		if err != nil {
			g.logger.Error("failed to list commits", "owner", owner, "repo", repo, "sha", sha, "error", err)
			return nil, err
		}
		for _, c := range commits {
			shas = append(shas, c.GetSHA())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if len(shas) > limit {
		shas = shas[:limit]
	}
	return shas, nil
}
