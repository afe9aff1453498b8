// Package gitutil reads commit history from a local clone of a repository.
package gitutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/sevigo/shot-warden/internal/core"
)

// Local serves the history of one local clone.
type Local struct {
	repo   *git.Repository
	fetch  bool
	logger *slog.Logger

	// mu serializes fetches against log walks.
	mu sync.Mutex
}

// Open opens the clone at path. When fetch is set every listing first
// fetches origin so new commits are visible.
func Open(path string, fetch bool, logger *slog.Logger) (*Local, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}
	return NewLocal(repo, fetch, logger), nil
}

// NewLocal wraps an already opened repository.
func NewLocal(repo *git.Repository, fetch bool, logger *slog.Logger) *Local {
	return &Local{repo: repo, fetch: fetch, logger: logger.With("component", "gitutil")}
}

// Serves reports whether the clone's origin is the project's repository.
func (l *Local) Serves(project *core.Project) bool {
	remote, err := l.repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return false
	}
	for _, u := range remote.Config().URLs {
		owner, repo, err := ParseRemote(u)
		if err == nil && strings.EqualFold(owner+"/"+repo, project.FullName()) {
			return true
		}
	}
	return false
}

// ListCommits walks history from ref in committer-time order, newest first.
// ref may be a sha, a local branch or a branch of origin. An unknown ref
// wraps core.ErrNotFound.
func (l *Local) ListCommits(ctx context.Context, ref string, limit int) ([]core.Commit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fetch {
		if err := l.fetchOrigin(ctx); err != nil {
			return nil, err
		}
	}

	hash, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}
	iter, err := l.repo.Log(&git.LogOptions{From: hash, Order: git.LogOrderCommitterTime})
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("commit %s: %w", ref, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to walk history of %s: %w", ref, err)
	}
	defer iter.Close()

	commits := make([]core.Commit, 0, limit)
	err = iter.ForEach(func(c *object.Commit) error {
		if len(commits) >= limit {
			return storer.ErrStop
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, core.Commit{SHA: c.Hash.String()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk history of %s: %w", ref, err)
	}
	return commits, nil
}

func (l *Local) resolve(ref string) (plumbing.Hash, error) {
	candidates := []string{ref, "refs/remotes/" + git.DefaultRemoteName + "/" + ref}
	for _, c := range candidates {
		hash, err := l.repo.ResolveRevision(plumbing.Revision(c))
		if err == nil {
			return *hash, nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("ref %s: %w", ref, core.ErrNotFound)
}

func (l *Local) fetchOrigin(ctx context.Context) error {
	err := l.repo.FetchContext(ctx, &git.FetchOptions{RemoteName: git.DefaultRemoteName, Force: true})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to fetch origin: %w", err)
	}
	return nil
}
