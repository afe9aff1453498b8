// Package handler provides the HTTP handlers of the shot-warden API.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/shot-warden/internal/core"
)

// PullRequestStore records pull request state reported by webhooks.
type PullRequestStore interface {
	FindProjectByRepo(ctx context.Context, provider core.Provider, owner, repo string) (*core.Project, error)
	UpdatePullRequestState(ctx context.Context, projectID int64, number int, state string, merged bool) error
}

// WebhookHandler processes incoming webhooks from GitHub.
type WebhookHandler struct {
	secret []byte
	store  PullRequestStore
	logger *slog.Logger
}

// NewWebhookHandler creates a webhook handler verifying payloads with secret.
func NewWebhookHandler(secret string, store PullRequestStore, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret: []byte(secret),
		store:  store,
		logger: logger,
	}
}

// Handle processes GitHub webhook requests.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		h.logger.Error("invalid webhook payload signature", "error", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		h.logger.Error("could not parse webhook", "error", err)
		http.Error(w, "Could not parse webhook", http.StatusBadRequest)
		return
	}

	switch e := event.(type) {
	case *github.PullRequestEvent:
		h.handlePullRequest(r.Context(), w, e)
	default:
		h.logger.Debug("ignoring unhandled webhook event type", "type", github.WebHookType(r))
		_, _ = fmt.Fprint(w, "Event type not handled")
	}
}

// handlePullRequest records the state of a pull request of a tracked repository.
func (h *WebhookHandler) handlePullRequest(ctx context.Context, w http.ResponseWriter, event *github.PullRequestEvent) {
	repo, pr := event.GetRepo(), event.GetPullRequest()
	if repo == nil || pr == nil {
		http.Error(w, "Missing repository or pull request", http.StatusBadRequest)
		return
	}
	owner, name := repo.GetOwner().GetLogin(), repo.GetName()

	project, err := h.store.FindProjectByRepo(ctx, core.ProviderGitHub, owner, name)
	if err != nil {
		h.logger.Error("failed to look up project", "repo", repo.GetFullName(), "error", err)
		http.Error(w, "Failed to look up project", http.StatusInternalServerError)
		return
	}
	if project == nil {
		h.logger.Debug("ignoring pull request of untracked repository", "repo", repo.GetFullName())
		_, _ = fmt.Fprint(w, "Repository not tracked")
		return
	}

	number := event.GetNumber()
	if number == 0 {
		number = pr.GetNumber()
	}
	if err := h.store.UpdatePullRequestState(ctx, project.ID, number, pr.GetState(), pr.GetMerged()); err != nil {
		h.logger.Error("failed to record pull request state", "repo", repo.GetFullName(), "pr", number, "error", err)
		http.Error(w, "Failed to record pull request", http.StatusInternalServerError)
		return
	}

	h.logger.Info("pull request state recorded", "repo", repo.GetFullName(), "pr", number, "action", event.GetAction(), "state", pr.GetState())
	_, _ = fmt.Fprint(w, "Pull request recorded")
}
