// Package gitlab posts commit statuses and merge request notes through the
// GitLab REST API and reads commit history from it.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sevigo/shot-warden/internal/core"
	"github.com/sevigo/shot-warden/internal/notify"
)

const defaultBaseURL = "https://gitlab.com"

// Adapter implements notify.Provider and baseline history for GitLab.
type Adapter struct {
	token   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ notify.Provider = (*Adapter)(nil)

// NewAdapter creates a GitLab adapter. baseURL can be a self-hosted instance;
// pass an empty string for gitlab.com.
func NewAdapter(token, baseURL string, logger *slog.Logger) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With("provider", "gitlab"),
	}
}

// projectPath identifies the project by numeric id when known, else by its
// escaped "namespace/name" path.
func projectPath(p *core.Project) string {
	if p.GitLabProjectID != 0 {
		return strconv.FormatInt(p.GitLabProjectID, 10)
	}
	return url.PathEscape(p.FullName())
}

func (a *Adapter) url(p *core.Project, format string, args ...any) string {
	return fmt.Sprintf("%s/api/v4/projects/%s", a.baseURL, projectPath(p)) + fmt.Sprintf(format, args...)
}

type statusRequest struct {
	State       string `json:"state"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TargetURL   string `json:"target_url,omitempty"`
}

// SetCommitStatus posts status with the GitLab state of its payload.
func (a *Adapter) SetCommitStatus(ctx context.Context, project *core.Project, status notify.CommitStatus) error {
	body := statusRequest{
		State:       status.Payload.GitLabState,
		Name:        status.Context,
		Description: status.Payload.Description,
		TargetURL:   status.TargetURL,
	}
	return a.do(ctx, http.MethodPost, a.url(project, "/statuses/%s", url.PathEscape(status.SHA)), body, nil)
}

type note struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// CreateComment adds a note to the merge request and returns its id.
func (a *Adapter) CreateComment(ctx context.Context, project *core.Project, prNumber int, body string) (int64, error) {
	var created note
	if err := a.do(ctx, http.MethodPost, a.url(project, "/merge_requests/%d/notes", prNumber), note{Body: body}, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// UpdateComment replaces the body of a merge request note.
func (a *Adapter) UpdateComment(ctx context.Context, project *core.Project, prNumber int, commentID int64, body string) error {
	return a.do(ctx, http.MethodPut, a.url(project, "/merge_requests/%d/notes/%d", prNumber, commentID), note{Body: body}, nil)
}

// History returns the commit history of the project.
func (a *Adapter) History(_ context.Context, project *core.Project) (core.GitHistory, error) {
	return &history{adapter: a, project: project}, nil
}

type history struct {
	adapter *Adapter
	project *core.Project
}

type commit struct {
	ID string `json:"id"`
}

func (h *history) ListCommits(ctx context.Context, ref string, limit int) ([]core.Commit, error) {
	u := h.adapter.url(h.project, "/repository/commits?ref_name=%s&per_page=%d", url.QueryEscape(ref), min(limit, 100))
	var commits []commit
	if err := h.adapter.do(ctx, http.MethodGet, u, nil, &commits); err != nil {
		return nil, err
	}
	out := make([]core.Commit, 0, min(len(commits), limit))
	for _, c := range commits[:min(len(commits), limit)] {
		out = append(out, core.Commit{SHA: c.ID})
	}
	return out, nil
}

type apiError struct {
	Message any `json:"message"`
}

func (a *Adapter) do(ctx context.Context, method, apiURL string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return a.statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// statusError maps a GitLab error response onto the core sentinels.
func (a *Adapter) statusError(resp *http.Response) error {
	var apiErr apiError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
	msg := fmt.Sprint(apiErr.Message)

	switch {
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(msg, "Cannot transition status"):
		return fmt.Errorf("gitlab API error: %s: %w", msg, core.ErrStatusTransition)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("gitlab API error: %s: %w", resp.Status, core.ErrNotFound)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("gitlab API error: %s: %w", resp.Status, core.ErrStaleRef)
	case resp.StatusCode == http.StatusUnauthorized:
		return core.Unretryable(fmt.Errorf("gitlab API error: %s", resp.Status))
	default:
		a.logger.Warn("gitlab API error", "status", resp.StatusCode, "message", msg)
		return fmt.Errorf("gitlab API error: %s", resp.Status)
	}
}
