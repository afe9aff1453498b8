package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v73/github"

	"github.com/sevigo/shot-warden/internal/config"
)

// ErrNotConfigured is returned when neither an App nor a token is configured.
var ErrNotConfigured = errors.New("github is not configured")

// ClientFactory returns the client acting for a project's installation.
type ClientFactory interface {
	ForInstallation(ctx context.Context, installationID int64) (Client, error)
}

// NewClientFactory picks token auth when a token is set and App auth otherwise.
func NewClientFactory(ctx context.Context, cfg config.GitHubConfig, logger *slog.Logger) (ClientFactory, error) {
	switch {
	case cfg.Token != "":
		logger.Info("using GitHub personal access token")
		return staticFactory{client: NewPATClient(ctx, cfg.Token, logger)}, nil
	case cfg.AppID != 0:
		privateKey, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.PrivateKeyPath, err)
		}
		return &appFactory{
			appID:      cfg.AppID,
			privateKey: privateKey,
			clients:    make(map[int64]Client),
			logger:     logger,
		}, nil
	default:
		return nil, ErrNotConfigured
	}
}

type staticFactory struct {
	client Client
}

func (s staticFactory) ForInstallation(context.Context, int64) (Client, error) {
	return s.client, nil
}

// appFactory keeps one installation transport per installation. The
// transport refreshes its token before expiry.
type appFactory struct {
	appID      int64
	privateKey []byte
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[int64]Client
}

func (a *appFactory) ForInstallation(_ context.Context, installationID int64) (Client, error) {
	if installationID == 0 {
		return nil, errors.New("project has no GitHub installation")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.clients[installationID]; ok {
		return c, nil
	}

	a.logger.Info("creating GitHub installation client", "installation_id", installationID)
	tr, err := ghinstallation.New(http.DefaultTransport, a.appID, installationID, a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation transport for %d: %w", installationID, err)
	}
	c := NewGitHubClient(github.NewClient(&http.Client{Transport: tr}), a.logger)
	a.clients[installationID] = c
	return c, nil
}
