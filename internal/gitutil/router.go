package gitutil

import (
	"context"

	"github.com/sevigo/shot-warden/internal/core"
)

// Remote opens the provider-side history of a project.
type Remote interface {
	History(ctx context.Context, project *core.Project) (core.GitHistory, error)
}

// Router prefers the local clone for the project it was cloned from and
// falls back to the project's provider API otherwise.
type Router struct {
	local   *Local
	remotes map[core.Provider]Remote
}

// NewRouter creates a Router. local may be nil.
func NewRouter(local *Local, remotes map[core.Provider]Remote) *Router {
	return &Router{local: local, remotes: remotes}
}

// History returns the git history used for baseline resolution.
func (r *Router) History(ctx context.Context, project *core.Project) (core.GitHistory, error) {
	if r.local != nil && r.local.Serves(project) {
		return r.local, nil
	}
	remote, ok := r.remotes[project.Provider]
	if !ok || remote == nil {
		return nil, core.Unretryablef("no history source for provider %q", project.Provider)
	}
	return remote.History(ctx, project)
}
