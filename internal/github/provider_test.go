package github_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	gh "github.com/google/go-github/v73/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/shot-warden/internal/core"
	"github.com/sevigo/shot-warden/internal/github"
	"github.com/sevigo/shot-warden/internal/notify"
	"github.com/sevigo/shot-warden/mocks"
)

type factory struct {
	client github.Client
	err    error
}

func (f factory) ForInstallation(context.Context, int64) (github.Client, error) {
	return f.client, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var project = &core.Project{ID: 1, Provider: core.ProviderGitHub, RepoOwner: "acme", RepoName: "web", InstallationID: 77}

func errorResponse(code int, msg string) error {
	return &gh.ErrorResponse{Response: &http.Response{StatusCode: code, Request: &http.Request{Method: http.MethodPatch, URL: &url.URL{Path: "/"}}}, Message: msg}
}

func TestProvider_SetCommitStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	p := github.NewProvider(factory{client: client}, discardLogger())

	client.EXPECT().CreateStatus(gomock.Any(), "acme", "web", "abc", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, _ string, s *gh.RepoStatus) error {
			assert.Equal(t, "failure", s.GetState())
			assert.Equal(t, "Diff detected", s.GetDescription())
			assert.Equal(t, "shotwarden/mobile", s.GetContext())
			assert.Equal(t, "https://shots.example.com/builds/3", s.GetTargetURL())
			return nil
		})

	err := p.SetCommitStatus(context.Background(), project, notify.CommitStatus{
		SHA:       "abc",
		Context:   "shotwarden/mobile",
		TargetURL: "https://shots.example.com/builds/3",
		Payload:   notify.Payload{Description: "Diff detected", GitHubState: "failure", GitLabState: "failed"},
	})
	require.NoError(t, err)
}

func TestProvider_TruncatesLongDescriptions(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	p := github.NewProvider(factory{client: client}, discardLogger())

	client.EXPECT().CreateStatus(gomock.Any(), "acme", "web", "abc", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, _ string, s *gh.RepoStatus) error {
			assert.Len(t, s.GetDescription(), 140)
			assert.Nil(t, s.TargetURL)
			return nil
		})

	err := p.SetCommitStatus(context.Background(), project, notify.CommitStatus{
		SHA:     "abc",
		Payload: notify.Payload{Description: strings.Repeat("x", 200), GitHubState: "error"},
	})
	require.NoError(t, err)
}

func TestProvider_TruncatesOnRuneBoundary(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	p := github.NewProvider(factory{client: client}, discardLogger())

	client.EXPECT().CreateStatus(gomock.Any(), "acme", "web", "abc", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, _ string, s *gh.RepoStatus) error {
			assert.True(t, utf8.ValidString(s.GetDescription()))
			assert.Equal(t, 140, utf8.RuneCountInString(s.GetDescription()))
			assert.Equal(t, strings.Repeat("é", 140), s.GetDescription())
			return nil
		})

	err := p.SetCommitStatus(context.Background(), project, notify.CommitStatus{
		SHA:     "abc",
		Payload: notify.Payload{Description: strings.Repeat("é", 200), GitHubState: "failure"},
	})
	require.NoError(t, err)
}

func TestProvider_MapsErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     core.ErrorKind
	}{
		{name: "not found", err: errorResponse(http.StatusNotFound, "Not Found"), sentinel: core.ErrNotFound, kind: core.KindRetryable},
		{name: "unprocessable", err: errorResponse(http.StatusUnprocessableEntity, "No commit found for SHA"), sentinel: core.ErrStaleRef, kind: core.KindRetryable},
		{name: "unauthorized", err: errorResponse(http.StatusUnauthorized, "Bad credentials"), kind: core.KindUnretryable},
		{name: "transport", err: errors.New("connection reset"), kind: core.KindRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			client := mocks.NewMockClient(ctrl)
			p := github.NewProvider(factory{client: client}, discardLogger())
			client.EXPECT().EditComment(gomock.Any(), "acme", "web", int64(5), "body").Return(tt.err)

			err := p.UpdateComment(context.Background(), project, 42, 5, "body")
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.Equal(t, tt.kind, core.KindOf(err))
		})
	}
}

func TestProvider_CreateComment(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	p := github.NewProvider(factory{client: client}, discardLogger())
	client.EXPECT().CreateComment(gomock.Any(), "acme", "web", 42, "hello").Return(int64(991), nil)

	id, err := p.CreateComment(context.Background(), project, 42, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(991), id)
}

func TestProvider_History(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	p := github.NewProvider(factory{client: client}, discardLogger())
	client.EXPECT().ListCommits(gomock.Any(), "acme", "web", "main", 100).Return([]string{"c2", "c1"}, nil)

	history, err := p.History(context.Background(), project)
	require.NoError(t, err)
	commits, err := history.ListCommits(context.Background(), "main", 100)
	require.NoError(t, err)
	assert.Equal(t, []core.Commit{{SHA: "c2"}, {SHA: "c1"}}, commits)
}

func TestProvider_MissingInstallationIsUnretryable(t *testing.T) {
	p := github.NewProvider(factory{err: errors.New("project has no GitHub installation")}, discardLogger())

	err := p.SetCommitStatus(context.Background(), project, notify.CommitStatus{SHA: "abc"})
	assert.Equal(t, core.KindUnretryable, core.KindOf(err))
}
