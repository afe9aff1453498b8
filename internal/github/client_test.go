package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v73/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	c.BaseURL = base
	return NewGitHubClient(c, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGitHubClient_ListCommitsFollowsPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/web/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("sha"))
		page := r.URL.Query().Get("page")
		if page == "" {
			page = "1"
		}
		if page == "1" {
			w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, "http://"+r.Host+r.URL.Path))
			_ = json.NewEncoder(w).Encode([]map[string]string{{"sha": "c3"}, {"sha": "c2"}})
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{{"sha": "c1"}})
	})

	client := newTestClient(t, mux)
	shas, err := client.ListCommits(context.Background(), "acme", "web", "main", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c3", "c2", "c1"}, shas)

	shas, err = client.ListCommits(context.Background(), "acme", "web", "main", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c3", "c2"}, shas)
}

func TestGitHubClient_CreateCommentReturnsID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/web/issues/42/comments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["body"])
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": 1234}`)
	})

	id, err := newTestClient(t, mux).CreateComment(context.Background(), "acme", "web", 42, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), id)
}

func TestGitHubClient_CreateStatusSurfacesErrorResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/web/statuses/deadbeef", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message": "No commit found for SHA: deadbeef"}`)
	})

	err := newTestClient(t, mux).CreateStatus(context.Background(), "acme", "web", "deadbeef", &github.RepoStatus{State: github.Ptr("pending")})
	require.Error(t, err)
	var ghErr *github.ErrorResponse
	require.ErrorAs(t, err, &ghErr)
	assert.Equal(t, http.StatusUnprocessableEntity, ghErr.Response.StatusCode)
}
