// Package app runs the shot-warden process: the HTTP API, the queue workers
// and the stalled-job sweeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sevigo/shot-warden/internal/config"
	"github.com/sevigo/shot-warden/internal/queue"
	"github.com/sevigo/shot-warden/internal/server"
)

// App holds the main application components.
type App struct {
	cfg     *config.Config
	server  *server.Server
	runner  *queue.Runner
	sweeper *queue.Sweeper
	logger  *slog.Logger
}

// NewApp assembles an App from its wired components.
func NewApp(cfg *config.Config, srv *server.Server, runner *queue.Runner, sweeper *queue.Sweeper, logger *slog.Logger) *App {
	return &App{
		cfg:     cfg,
		server:  srv,
		runner:  runner,
		sweeper: sweeper,
		logger:  logger,
	}
}

// Sweeper returns the stalled-job sweeper, used by the replay and sweep commands.
func (a *App) Sweeper() *queue.Sweeper { return a.sweeper }

// StartWorkers launches the queue workers and schedules the sweeper.
func (a *App) StartWorkers(ctx context.Context) error {
	a.logger.Info("starting queue workers",
		"broker", a.cfg.Broker.Kind,
		"soft_timeout", a.cfg.Queue.SoftTimeout,
		"max_retries", a.cfg.Queue.MaxRetries)
	a.runner.Start(ctx)
	if err := a.sweeper.Start(a.cfg.Queue.SweepSchedule); err != nil {
		return err
	}
	return nil
}

// Start runs the workers and the HTTP server until ctx is done or either fails.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("starting shot-warden", "server_port", a.cfg.Server.Port)
	if err := a.StartWorkers(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.server.Start)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-a.runner.Done():
			return errors.New("queue workers exited")
		}
	})
	if err := g.Wait(); err != nil {
		a.logger.Error("shot-warden stopped unexpectedly", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down shot-warden services")

	// Stop the HTTP server first to prevent new incoming requests.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
	}

	a.sweeper.Stop()
	if err := a.runner.Stop(); err != nil {
		a.logger.Error("worker stopped with error", "error", err)
	}

	if serverErr != nil {
		return fmt.Errorf("shot-warden stopped with errors: %w", serverErr)
	}
	a.logger.Info("shot-warden stopped successfully")
	return nil
}

// StopWorkers stops the sweeper and workers of a worker-only process.
func (a *App) StopWorkers() error {
	a.sweeper.Stop()
	return a.runner.Stop()
}
