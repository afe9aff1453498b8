package queue

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Runner hosts a set of workers in one process, one goroutine per worker.
// Each worker holds a single in-flight delivery; horizontal scale comes from
// running more processes.
type Runner struct {
	workers []*Worker
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewRunner creates a runner for the given workers.
func NewRunner(logger *slog.Logger, workers ...*Worker) *Runner {
	return &Runner{workers: workers, logger: logger}
}

// Start launches every worker. It returns immediately.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		r.logger.Info("starting worker", "queue", w.Queue())
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	go func() {
		defer close(r.done)
		if err := g.Wait(); err != nil {
			r.logger.Error("worker exited with error", "error", err)
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
		}
	}()
}

// Stop cancels all workers and waits for in-flight jobs to settle.
func (r *Runner) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}

	r.logger.Info("stopping workers and waiting for jobs to finish")
	cancel()
	<-done
	r.logger.Info("all workers have stopped")

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed once every worker has returned.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
