package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/shot-warden/internal/core"
	"github.com/sevigo/shot-warden/internal/lock"
)

// Store is the persistence the dispatcher reads and patches.
type Store interface {
	GetBuild(ctx context.Context, id int64) (*core.Build, error)
	GetProject(ctx context.Context, id int64) (*core.Project, error)
	GetBucket(ctx context.Context, id int64) (*core.ScreenshotBucket, error)
	EnsurePullRequest(ctx context.Context, projectID int64, number int) (*core.PullRequest, error)
	GetPullRequest(ctx context.Context, id int64) (*core.PullRequest, error)
	SetPullRequestComment(ctx context.Context, id, commentID int64) error
	MarkCommentDeleted(ctx context.Context, id int64) error
	// BuildStatesAtCommit returns the latest build of every name whose
	// compare bucket is at commit.
	BuildStatesAtCommit(ctx context.Context, projectID int64, commit string) ([]BuildState, error)
}

// Dispatcher delivers build notifications to the project's provider.
type Dispatcher struct {
	store     Store
	providers Registry
	locker    lock.Locker
	baseURL   string
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher. baseURL is the dashboard root used in links.
func NewDispatcher(store Store, providers Registry, locker lock.Locker, baseURL string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		providers: providers,
		locker:    locker,
		baseURL:   baseURL,
		logger:    logger.With("component", "notify"),
		now:       time.Now,
	}
}

// target is everything loaded once per delivery.
type target struct {
	build    *core.Build
	project  *core.Project
	commit   string
	provider Provider
}

// Notify posts the commit status of n, upserts the pull request comment and
// refreshes the rollup status. Every provider call for one commit or one
// pull request runs under its lock.
func (d *Dispatcher) Notify(ctx context.Context, n *core.BuildNotification) error {
	t, err := d.load(ctx, n.BuildID)
	if err != nil {
		return err
	}
	payload, err := PayloadFor(n.Type, t.build.Type)
	if err != nil {
		return err
	}

	status := CommitStatus{
		SHA:       t.commit,
		Context:   StatusContext(t.build.Name),
		TargetURL: BuildURL(d.baseURL, t.build.ID),
		Payload:   payload,
	}
	if err := d.postStatus(ctx, t, status, d.statusKey(t)); err != nil {
		return err
	}

	var states []BuildState
	loadStates := func() ([]BuildState, error) {
		if states != nil {
			return states, nil
		}
		s, err := d.store.BuildStatesAtCommit(ctx, t.project.ID, t.commit)
		if err != nil {
			return nil, fmt.Errorf("failed to load builds at %s: %w", t.commit, err)
		}
		states = s
		return states, nil
	}

	if t.build.PRNumber != nil {
		if err := d.upsertComment(ctx, t, *t.build.PRNumber, loadStates); err != nil {
			return err
		}
	}

	if t.project.SummaryCheck == core.SummaryCheckNever {
		return nil
	}
	all, err := loadStates()
	if err != nil {
		return err
	}
	summary, ok, err := Aggregate(all, t.project.SummaryCheck)
	if err != nil || !ok {
		return err
	}
	return d.postStatus(ctx, t, CommitStatus{
		SHA:       t.commit,
		Context:   SummaryContext(),
		TargetURL: BuildURL(d.baseURL, t.build.ID),
		Payload:   summary,
	}, d.statusKey(t)+":summary")
}

func (d *Dispatcher) load(ctx context.Context, buildID int64) (*target, error) {
	build, err := d.store.GetBuild(ctx, buildID)
	if err != nil {
		return nil, notFoundIsFatal("build", buildID, err)
	}
	project, err := d.store.GetProject(ctx, build.ProjectID)
	if err != nil {
		return nil, notFoundIsFatal("project", build.ProjectID, err)
	}
	bucket, err := d.store.GetBucket(ctx, build.CompareBucketID)
	if err != nil {
		return nil, notFoundIsFatal("compare bucket", build.CompareBucketID, err)
	}
	provider, err := d.providers.For(project.Provider)
	if err != nil {
		return nil, err
	}
	return &target{build: build, project: project, commit: bucket.Commit, provider: provider}, nil
}

func (d *Dispatcher) statusKey(t *target) string {
	return fmt.Sprintf("status:%s:%s:%s", t.project.Provider, t.project.FullName(), t.commit)
}

func (d *Dispatcher) postStatus(ctx context.Context, t *target, status CommitStatus, key string) error {
	return d.locker.Acquire(ctx, key, func(ctx context.Context) error {
		err := t.provider.SetCommitStatus(ctx, t.project, status)
		switch {
		case err == nil:
			d.logger.Debug("commit status posted", "sha", status.SHA, "context", status.Context, "state", status.Payload.GitHubState)
			return nil
		case errors.Is(err, core.ErrStaleRef), errors.Is(err, core.ErrStatusTransition):
			d.logger.Info("commit status ignored by provider", "sha", status.SHA, "context", status.Context, "reason", err)
			return nil
		case errors.Is(err, core.ErrNotFound):
			return core.Unretryable(fmt.Errorf("commit %s not found: %w", status.SHA, err))
		default:
			return fmt.Errorf("failed to set commit status on %s: %w", status.SHA, err)
		}
	})
}

// upsertComment creates the pull request comment once and edits it afterwards.
// The comment id is re-read under the lock so concurrent deliveries never
// create two comments.
func (d *Dispatcher) upsertComment(ctx context.Context, t *target, number int, states func() ([]BuildState, error)) error {
	pr, err := d.store.EnsurePullRequest(ctx, t.project.ID, number)
	if err != nil {
		return fmt.Errorf("failed to load pull request #%d: %w", number, err)
	}
	if pr.CommentDeleted {
		return nil
	}

	key := fmt.Sprintf("comment:%s:%d", t.project.Provider, pr.ID)
	return d.locker.Acquire(ctx, key, func(ctx context.Context) error {
		pr, err := d.store.GetPullRequest(ctx, pr.ID)
		if err != nil {
			return fmt.Errorf("failed to reload pull request #%d: %w", number, err)
		}
		if pr.CommentDeleted {
			return nil
		}
		all, err := states()
		if err != nil {
			return err
		}
		body := RenderComment(all, d.baseURL, d.now())

		if pr.CommentID == nil {
			id, err := t.provider.CreateComment(ctx, t.project, number, body)
			if err != nil {
				return d.commentError(ctx, pr, err)
			}
			if err := d.store.SetPullRequestComment(ctx, pr.ID, id); err != nil {
				return fmt.Errorf("failed to store comment id: %w", err)
			}
			d.logger.Info("pull request comment created", "pr", number, "comment_id", id)
			return nil
		}

		if err := t.provider.UpdateComment(ctx, t.project, number, *pr.CommentID, body); err != nil {
			return d.commentError(ctx, pr, err)
		}
		return nil
	})
}

func (d *Dispatcher) commentError(ctx context.Context, pr *core.PullRequest, err error) error {
	switch {
	case errors.Is(err, core.ErrNotFound):
		d.logger.Info("pull request comment is gone, not commenting again", "pr", pr.Number)
		if err := d.store.MarkCommentDeleted(ctx, pr.ID); err != nil {
			return fmt.Errorf("failed to mark comment deleted: %w", err)
		}
		return nil
	case errors.Is(err, core.ErrStaleRef):
		return nil
	default:
		return fmt.Errorf("failed to upsert comment on #%d: %w", pr.Number, err)
	}
}

func notFoundIsFatal(what string, id int64, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return core.Unretryable(fmt.Errorf("%s %d: %w", what, id, err))
	}
	return fmt.Errorf("failed to load %s %d: %w", what, id, err)
}
