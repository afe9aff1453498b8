package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/google/wire"

	"github.com/sevigo/shot-warden/internal/app"
	"github.com/sevigo/shot-warden/internal/baseline"
	"github.com/sevigo/shot-warden/internal/blob"
	"github.com/sevigo/shot-warden/internal/broker"
	"github.com/sevigo/shot-warden/internal/config"
	"github.com/sevigo/shot-warden/internal/core"
	"github.com/sevigo/shot-warden/internal/db"
	"github.com/sevigo/shot-warden/internal/github"
	"github.com/sevigo/shot-warden/internal/gitlab"
	"github.com/sevigo/shot-warden/internal/gitutil"
	"github.com/sevigo/shot-warden/internal/jobs"
	"github.com/sevigo/shot-warden/internal/lock"
	"github.com/sevigo/shot-warden/internal/logger"
	"github.com/sevigo/shot-warden/internal/notify"
	"github.com/sevigo/shot-warden/internal/queue"
	"github.com/sevigo/shot-warden/internal/server"
	"github.com/sevigo/shot-warden/internal/server/handler"
	"github.com/sevigo/shot-warden/internal/storage"
)

// Toolkit is what the operator commands need without starting any worker.
type Toolkit struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         *storage.Store
	Queue         *queue.Queue
	Sweeper       *queue.Sweeper
	Notifications *jobs.Notifications
}

// InfraSet provides configuration, logging, storage and transport.
var InfraSet = wire.NewSet(
	config.LoadConfig,
	provideLogger,
	provideDBConfig,
	db.NewDatabase,
	provideStore,
	provideBroker,
	queue.New,
	provideLocker,
	provideSweeper,
)

// PipelineSet provides the providers, baseline resolution and the jobs.
var PipelineSet = wire.NewSet(
	provideGitHub,
	provideGitLab,
	provideRegistry,
	provideHistories,
	provideRules,
	provideResolver,
	provideDispatcher,
	provideBlobStore,
	provideNotifications,
	provideConcluder,
	provideBuildJob,
	provideScreenshotDiffJob,
	provideNotificationJob,
	provideHandlers,
	provideRunner,
)

// ServerSet provides the HTTP API.
var ServerSet = wire.NewSet(
	provideAPIHandler,
	provideWebhookHandler,
	server.NewRouter,
	provideServer,
	app.NewApp,
)

func provideLogger(cfg *config.Config) *slog.Logger {
	return logger.NewLogger(cfg.Logging, nil)
}

func provideDBConfig(cfg *config.Config) *config.DBConfig {
	return cfg.Database
}

func provideStore(d *db.DB) *storage.Store {
	return storage.NewStore(d.DB)
}

func provideBroker(cfg *config.Config, logger *slog.Logger) (broker.Broker, func(), error) {
	var (
		b   broker.Broker
		err error
	)
	switch cfg.Broker.Kind {
	case config.BrokerMemory:
		logger.Warn("using in-memory broker, jobs do not survive a restart")
		b = broker.NewMemoryBroker()
	default:
		b, err = broker.NewKafkaBroker(broker.KafkaConfig{
			Brokers:     cfg.Broker.Brokers,
			GroupPrefix: cfg.Broker.GroupPrefix,
		}, logger)
		if err != nil {
			return nil, func() {}, err
		}
	}
	return b, func() {
		if err := b.Close(); err != nil {
			logger.Error("failed to close broker", "error", err)
		}
	}, nil
}

func provideLocker(cfg *config.Config, d *db.DB, logger *slog.Logger) lock.Locker {
	return lock.NewPostgresLocker(d.DB, lock.Options{TTL: cfg.Lock.TTL, RetryDelay: cfg.Lock.RetryDelay}, logger)
}

func provideSweeper(cfg *config.Config, q *queue.Queue, store *storage.Store, logger *slog.Logger) *queue.Sweeper {
	return queue.NewSweeper(q, cfg.Queue.StallWindow, logger,
		store.Builds(), store.Diffs(), store.Notifications())
}

// provideGitHub returns nil when GitHub is not configured.
func provideGitHub(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*github.Provider, error) {
	clients, err := github.NewClientFactory(ctx, cfg.GitHub, logger)
	if errors.Is(err, github.ErrNotConfigured) {
		logger.Warn("GitHub is not configured, GitHub projects cannot be notified")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return github.NewProvider(clients, logger), nil
}

// provideGitLab returns nil when no GitLab token is set.
func provideGitLab(cfg *config.Config, logger *slog.Logger) *gitlab.Adapter {
	if cfg.GitLab.Token == "" {
		return nil
	}
	return gitlab.NewAdapter(cfg.GitLab.Token, cfg.GitLab.BaseURL, logger)
}

// provideRegistry registers the configured adapters. Nil pointers are kept
// out of the interface values.
func provideRegistry(gh *github.Provider, gl *gitlab.Adapter) notify.Registry {
	var ghp, glp notify.Provider
	if gh != nil {
		ghp = gh
	}
	if gl != nil {
		glp = gl
	}
	return notify.NewProviderRegistry(ghp, glp)
}

func provideHistories(cfg *config.Config, gh *github.Provider, gl *gitlab.Adapter, logger *slog.Logger) (*gitutil.Router, error) {
	remotes := map[core.Provider]gitutil.Remote{}
	if gh != nil {
		remotes[core.ProviderGitHub] = gh
	}
	if gl != nil {
		remotes[core.ProviderGitLab] = gl
	}

	var local *gitutil.Local
	if cfg.Baseline.LocalRepoPath != "" {
		l, err := gitutil.Open(cfg.Baseline.LocalRepoPath, cfg.Baseline.FetchLocal, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open local history: %w", err)
		}
		local = l
	}
	return gitutil.NewRouter(local, remotes), nil
}

func provideRules(cfg *config.Config) (*baseline.Rules, error) {
	return baseline.LoadRules(cfg.Baseline.RulesFile)
}

func provideResolver(cfg *config.Config, store *storage.Store, histories *gitutil.Router, rules *baseline.Rules, logger *slog.Logger) *baseline.Resolver {
	return baseline.NewResolver(store, histories, rules, cfg.Baseline.CommitLimit, logger)
}

func provideDispatcher(cfg *config.Config, store *storage.Store, registry notify.Registry, locker lock.Locker, logger *slog.Logger) *notify.Dispatcher {
	return notify.NewDispatcher(store, registry, locker, cfg.App.BaseURL, logger)
}

func provideBlobStore(cfg *config.Config, logger *slog.Logger) (*blob.FileStore, error) {
	return blob.NewFileStore(cfg.Blob.Root, logger)
}

func provideNotifications(store *storage.Store, q *queue.Queue, logger *slog.Logger) *jobs.Notifications {
	return jobs.NewNotifications(store, q, logger)
}

func provideConcluder(store *storage.Store, notifications *jobs.Notifications, logger *slog.Logger) *jobs.Concluder {
	return jobs.NewConcluder(store, notifications, logger)
}

func provideBuildJob(store *storage.Store, resolver *baseline.Resolver, q *queue.Queue, notifications *jobs.Notifications, concluder *jobs.Concluder, logger *slog.Logger) *jobs.BuildJob {
	return jobs.NewBuildJob(store, resolver, q, notifications, concluder, logger)
}

func provideScreenshotDiffJob(cfg *config.Config, store *storage.Store, blobs *blob.FileStore, locker lock.Locker, concluder *jobs.Concluder, logger *slog.Logger) *jobs.ScreenshotDiffJob {
	return jobs.NewScreenshotDiffJob(store, blobs, locker, concluder, cfg.Diff.Options(), logger)
}

func provideNotificationJob(dispatcher *notify.Dispatcher) *jobs.NotificationJob {
	return jobs.NewNotificationJob(dispatcher)
}

func provideHandlers(store *storage.Store, build *jobs.BuildJob, screenshotDiff *jobs.ScreenshotDiffJob, notification *jobs.NotificationJob, notifications *jobs.Notifications, logger *slog.Logger) jobs.Handlers {
	tables := jobs.Tables{
		Builds:        store.Builds(),
		Diffs:         store.Diffs(),
		Notifications: store.Notifications(),
	}
	return jobs.NewHandlers(tables, build, screenshotDiff, notification, notifications, logger)
}

func provideRunner(cfg *config.Config, b broker.Broker, handlers jobs.Handlers, logger *slog.Logger) *queue.Runner {
	opts := queue.Options{SoftTimeout: cfg.Queue.SoftTimeout, MaxRetries: cfg.Queue.MaxRetries}
	reporter := queue.NewLogReporter(logger)
	workers := make([]*queue.Worker, 0, len(handlers))
	for _, name := range []string{core.QueueBuild, core.QueueScreenshotDiff, core.QueueBuildNotification} {
		workers = append(workers, queue.NewWorker(name, b, handlers[name], reporter, opts, logger))
	}
	return queue.NewRunner(logger, workers...)
}

func provideAPIHandler(store *storage.Store, q *queue.Queue, notifications *jobs.Notifications, logger *slog.Logger) *handler.APIHandler {
	return handler.NewAPIHandler(store, q, notifications, logger)
}

func provideWebhookHandler(cfg *config.Config, store *storage.Store, logger *slog.Logger) *handler.WebhookHandler {
	return handler.NewWebhookHandler(cfg.GitHub.WebhookSecret, store, logger)
}

func provideServer(cfg *config.Config, router *chi.Mux, logger *slog.Logger) *server.Server {
	return server.NewServer(cfg.Server, router, logger)
}
