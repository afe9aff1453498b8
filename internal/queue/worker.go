package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/shot-warden/internal/broker"
	"github.com/sevigo/shot-warden/internal/core"
)

const (
	// DefaultMaxRetries is the number of republishes after the first attempt.
	DefaultMaxRetries = 2
	// DefaultSoftTimeout bounds a single handler invocation.
	DefaultSoftTimeout = 30 * time.Second
)

// ErrSoftTimeout is returned when a handler exceeds its soft timeout.
var ErrSoftTimeout = errors.New("job exceeded soft timeout")

// Job identifies one delivery of a queued subject.
type Job struct {
	Queue    string
	ID       int64
	Attempts int
}

// Handler performs jobs of one queue.
type Handler interface {
	// Perform runs the job. The returned error kind drives retry decisions.
	Perform(ctx context.Context, job Job) error
	// Fail is called once a job is terminally failed.
	Fail(ctx context.Context, job Job, err error)
}

// Options tunes a worker.
type Options struct {
	SoftTimeout time.Duration
	MaxRetries  int
}

func (o Options) withDefaults() Options {
	if o.SoftTimeout <= 0 {
		o.SoftTimeout = DefaultSoftTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return o
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{SoftTimeout: DefaultSoftTimeout, MaxRetries: DefaultMaxRetries}
}

// Worker consumes a single queue with one delivery in flight.
type Worker struct {
	queue    string
	broker   broker.Broker
	handler  Handler
	reporter Reporter
	opts     Options
	logger   *slog.Logger
}

// NewWorker creates a worker for the named queue.
func NewWorker(queue string, b broker.Broker, h Handler, reporter Reporter, opts Options, logger *slog.Logger) *Worker {
	return &Worker{
		queue:    queue,
		broker:   b,
		handler:  h,
		reporter: reporter,
		opts:     opts.withDefaults(),
		logger:   logger.With("queue", queue),
	}
}

// Queue returns the name of the consumed queue.
func (w *Worker) Queue() string { return w.queue }

// Run consumes deliveries until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.broker.Subscribe(ctx, w.queue)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.queue, err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			w.logger.Error("failed to close subscription", "error", err)
		}
	}()

	w.logger.Info("worker started")
	for {
		d, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, broker.ErrClosed) {
				w.logger.Info("worker stopped")
				return nil
			}
			return fmt.Errorf("failed to receive from %s: %w", w.queue, err)
		}
		if err := w.process(ctx, sub, d); err != nil {
			return err
		}
	}
}

// process handles one delivery. The delivery is acknowledged in every outcome
// except shutdown, which leaves it for redelivery.
func (w *Worker) process(ctx context.Context, sub broker.Subscription, d *broker.Delivery) error {
	env, err := DecodeEnvelope(d.Body)
	if err != nil {
		w.reporter.Report(ctx, err, w.queue, nil, 0)
		return w.ack(ctx, sub, d)
	}

	job := Job{Queue: w.queue, ID: env.Args[0], Attempts: env.Attempts}
	log := w.logger.With("id", job.ID, "attempts", job.Attempts)
	log.Debug("job received")

	err = w.perform(ctx, job)
	if ctx.Err() != nil {
		log.Warn("shutdown during job, leaving delivery unacknowledged")
		return nil
	}

	switch {
	case err == nil:
		log.Debug("job complete")
	case core.KindOf(err) == core.KindBenign:
		log.Debug("job finished with benign error", "reason", err)
	case core.KindOf(err) == core.KindUnretryable:
		w.reporter.Report(ctx, err, w.queue, env.Args, job.Attempts)
		w.handler.Fail(ctx, job, err)
	case job.Attempts < w.opts.MaxRetries:
		log.Warn("job failed, retrying", "error", err)
		retry := Envelope{Args: env.Args, Attempts: job.Attempts + 1}
		if perr := w.republish(ctx, retry); perr != nil {
			w.reporter.Report(ctx, errors.Join(err, perr), w.queue, env.Args, job.Attempts)
			w.handler.Fail(ctx, job, err)
		}
	default:
		w.reporter.Report(ctx, err, w.queue, env.Args, job.Attempts)
		w.handler.Fail(ctx, job, err)
	}

	return w.ack(ctx, sub, d)
}

func (w *Worker) perform(ctx context.Context, job Job) (err error) {
	jobCtx, cancel := context.WithTimeout(ctx, w.opts.SoftTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("job panicked: %v", r)
			}
		}()
		done <- w.handler.Perform(jobCtx, job)
	}()

	select {
	case err = <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return core.Retryable(fmt.Errorf("%w: %w", ErrSoftTimeout, err))
		}
		return err
	case <-jobCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.Retryable(fmt.Errorf("%w after %s", ErrSoftTimeout, w.opts.SoftTimeout))
	}
}

func (w *Worker) republish(ctx context.Context, env Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	return w.broker.Publish(ctx, w.queue, body)
}

func (w *Worker) ack(ctx context.Context, sub broker.Subscription, d *broker.Delivery) error {
	if err := sub.Ack(ctx, d); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Error("failed to acknowledge delivery", "error", err)
	}
	return nil
}
