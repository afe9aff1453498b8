package notify

import (
	"context"

	"github.com/sevigo/shot-warden/internal/core"
)

// CommitStatus is one status posted on a commit.
type CommitStatus struct {
	SHA       string
	Context   string
	TargetURL string
	Payload   Payload
}

// Provider is the outbound surface of a version-control host. Adapters map
// host errors onto core.ErrNotFound, core.ErrStaleRef and core.ErrStatusTransition.
//
//go:generate mockgen -destination=../../mocks/mock_notify_provider.go -package=mocks . Provider
type Provider interface {
	SetCommitStatus(ctx context.Context, project *core.Project, status CommitStatus) error
	CreateComment(ctx context.Context, project *core.Project, prNumber int, body string) (int64, error)
	UpdateComment(ctx context.Context, project *core.Project, prNumber int, commentID int64, body string) error
}

// Registry resolves the adapter of a project's provider.
type Registry map[core.Provider]Provider

// NewProviderRegistry registers the non-nil adapters.
func NewProviderRegistry(github, gitlab Provider) Registry {
	r := Registry{}
	if github != nil {
		r[core.ProviderGitHub] = github
	}
	if gitlab != nil {
		r[core.ProviderGitLab] = gitlab
	}
	return r
}

// For returns the adapter of kind. A project on an unconfigured provider
// cannot be notified by retrying.
func (r Registry) For(kind core.Provider) (Provider, error) {
	p, ok := r[kind]
	if !ok {
		return nil, core.Unretryablef("no provider configured for %q", kind)
	}
	return p, nil
}
