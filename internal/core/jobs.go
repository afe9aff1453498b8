package core

import (
	"context"
	"fmt"
)

// JobStatus is the lifecycle attached to any queued entity.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusProgress JobStatus = "progress"
	JobStatusComplete JobStatus = "complete"
	JobStatusError    JobStatus = "error"
	JobStatusAborted  JobStatus = "aborted"
)

// Valid reports whether s is one of the five known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProgress, JobStatusComplete, JobStatusError, JobStatusAborted:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is legal.
// Redelivery may re-set progress. Error is reset to pending by a replay, and
// progress is reset to pending by the stalled-job sweep.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if next == JobStatusAborted {
		return true
	}
	switch s {
	case JobStatusPending:
		return next == JobStatusProgress
	case JobStatusProgress:
		return next == JobStatusProgress || next == JobStatusComplete || next == JobStatusError ||
			next == JobStatusPending
	case JobStatusError:
		return next == JobStatusPending
	}
	return false
}

// AllowedFrom lists the statuses from which next can be reached.
func AllowedFrom(next JobStatus) []JobStatus {
	all := []JobStatus{JobStatusPending, JobStatusProgress, JobStatusComplete, JobStatusError, JobStatusAborted}
	var from []JobStatus
	for _, s := range all {
		if s.CanTransition(next) {
			from = append(from, s)
		}
	}
	return from
}

// Queue names, one per job type.
const (
	QueueBuild             = "build"
	QueueScreenshotDiff    = "screenshotDiff"
	QueueBuildNotification = "buildNotification"
)

// Pusher enqueues subject ids on a named queue. It decouples the pipeline
// stages from the transport that carries them.
type Pusher interface {
	// Push durably enqueues one job per id with zero attempts.
	Push(ctx context.Context, queue string, ids ...int64) error
}

// InvalidTransitionError is returned when a status patch would break the lifecycle.
type InvalidTransitionError struct {
	From, To JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid job status transition from %s to %s", e.From, e.To)
}

// JobState returns the job status of the build.
func (b *Build) JobState() JobStatus { return b.JobStatus }

// JobState returns the job status of the diff.
func (d *ScreenshotDiff) JobState() JobStatus { return d.JobStatus }

// JobState returns the job status of the notification.
func (n *BuildNotification) JobState() JobStatus { return n.JobStatus }
