package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sevigo/shot-warden/internal/core"
)

// DefaultStallWindow is how long a subject may stay in progress before it is requeued.
const DefaultStallWindow = 10 * time.Minute

// SweepSource is a subject table whose stuck rows can be requeued.
type SweepSource interface {
	Queue() string
	// ListStalled returns ids in progress since before the given time.
	ListStalled(ctx context.Context, before time.Time) ([]int64, error)
	// ResetStatus moves ids currently in one of from back to pending and
	// returns the ids actually reset.
	ResetStatus(ctx context.Context, ids []int64, from core.JobStatus) ([]int64, error)
}

// Sweeper requeues subjects left in progress by a crash between status writes.
type Sweeper struct {
	pusher  core.Pusher
	sources []SweepSource
	window  time.Duration
	logger  *slog.Logger
	now     func() time.Time

	cron *cron.Cron
}

// NewSweeper creates a sweeper over the given sources.
func NewSweeper(pusher core.Pusher, window time.Duration, logger *slog.Logger, sources ...SweepSource) *Sweeper {
	if window <= 0 {
		window = DefaultStallWindow
	}
	return &Sweeper{
		pusher:  pusher,
		sources: sources,
		window:  window,
		logger:  logger.With("component", "sweeper"),
		now:     time.Now,
	}
}

// Sweep performs one pass and returns the number of requeued subjects.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	before := s.now().Add(-s.window)
	var (
		total int
		errs  []error
	)
	for _, src := range s.sources {
		ids, err := src.ListStalled(ctx, before)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to list stalled %s jobs: %w", src.Queue(), err))
			continue
		}
		if len(ids) == 0 {
			continue
		}
		reset, err := src.ResetStatus(ctx, ids, core.JobStatusProgress)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to reset stalled %s jobs: %w", src.Queue(), err))
			continue
		}
		if err := s.pusher.Push(ctx, src.Queue(), reset...); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Warn("requeued stalled jobs", "queue", src.Queue(), "ids", reset)
		total += len(reset)
	}
	return total, errors.Join(errs...)
}

// Replay resets errored subjects of a queue to pending and pushes them again.
func (s *Sweeper) Replay(ctx context.Context, queue string, ids ...int64) (int, error) {
	for _, src := range s.sources {
		if src.Queue() != queue {
			continue
		}
		reset, err := src.ResetStatus(ctx, ids, core.JobStatusError)
		if err != nil {
			return 0, fmt.Errorf("failed to reset %s jobs: %w", queue, err)
		}
		if err := s.pusher.Push(ctx, queue, reset...); err != nil {
			return 0, err
		}
		return len(reset), nil
	}
	return 0, fmt.Errorf("no sweep source for queue %s", queue)
}

// Start schedules Sweep with a cron spec such as "@every 1m".
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("sweeper scheduled", "schedule", schedule, "window", s.window)
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
