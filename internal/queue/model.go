package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sevigo/shot-warden/internal/core"
)

// errSubjectMissing marks a job whose subject row does not exist. Errors of
// relations the handler loads may wrap core.ErrNotFound too, so Fail keys on
// this sentinel alone.
var errSubjectMissing = errors.New("job subject missing")

// Subject is an entity that can be used as a job subject.
type Subject interface {
	JobState() core.JobStatus
}

// SubjectStore is the point lookup and status patch a subject table must support.
// Find wraps core.ErrNotFound when the id does not exist.
type SubjectStore[T Subject] interface {
	Find(ctx context.Context, id int64) (T, error)
	SetJobStatus(ctx context.Context, id int64, status core.JobStatus) error
}

// ModelJob wraps a domain handler with status bookkeeping on its subject.
type ModelJob[T Subject] struct {
	name    string
	store   SubjectStore[T]
	run     func(ctx context.Context, subject T) error
	onError func(ctx context.Context, id int64, err error)
	logger  *slog.Logger
}

// ModelOption customizes a ModelJob.
type ModelOption[T Subject] func(*ModelJob[T])

// WithErrorHook runs fn after a subject has been marked as errored.
func WithErrorHook[T Subject](fn func(ctx context.Context, id int64, err error)) ModelOption[T] {
	return func(m *ModelJob[T]) { m.onError = fn }
}

// NewModelJob builds a Handler that loads the subject, marks it in progress,
// runs fn and marks it complete.
func NewModelJob[T Subject](name string, store SubjectStore[T], fn func(ctx context.Context, subject T) error, logger *slog.Logger, opts ...ModelOption[T]) *ModelJob[T] {
	m := &ModelJob[T]{
		name:   name,
		store:  store,
		run:    fn,
		logger: logger.With("job", name),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Perform implements Handler.
func (m *ModelJob[T]) Perform(ctx context.Context, job Job) error {
	subject, err := m.store.Find(ctx, job.ID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Unretryable(fmt.Errorf("%w: %s %d: %w", errSubjectMissing, m.name, job.ID, err))
		}
		return fmt.Errorf("failed to load %s %d: %w", m.name, job.ID, err)
	}

	if subject.JobState() == core.JobStatusComplete {
		m.logger.Debug("subject already complete, skipping", "id", job.ID)
		return nil
	}

	if err := m.store.SetJobStatus(ctx, job.ID, core.JobStatusProgress); err != nil {
		return fmt.Errorf("failed to mark %s %d in progress: %w", m.name, job.ID, err)
	}

	if err := m.run(ctx, subject); err != nil {
		if core.KindOf(err) != core.KindBenign {
			return err
		}
		m.logger.Debug("benign failure", "id", job.ID, "reason", err)
	}

	if err := m.store.SetJobStatus(ctx, job.ID, core.JobStatusComplete); err != nil {
		return fmt.Errorf("failed to mark %s %d complete: %w", m.name, job.ID, err)
	}
	return nil
}

// Fail implements Handler. A missing subject has no status to patch.
func (m *ModelJob[T]) Fail(ctx context.Context, job Job, err error) {
	if errors.Is(err, errSubjectMissing) {
		return
	}
	if serr := m.store.SetJobStatus(ctx, job.ID, core.JobStatusError); serr != nil {
		m.logger.Error("failed to mark subject as errored", "id", job.ID, "error", serr)
	}
	if m.onError != nil {
		m.onError(ctx, job.ID, err)
	}
}
