package queue

import (
	"context"
	"log/slog"
)

// Reporter receives unexpected job failures for error tracking.
type Reporter interface {
	Report(ctx context.Context, err error, queue string, args []int64, attempts int)
}

type logReporter struct {
	logger *slog.Logger
}

// NewLogReporter reports failures as structured error logs.
func NewLogReporter(logger *slog.Logger) Reporter {
	return &logReporter{logger: logger}
}

func (r *logReporter) Report(ctx context.Context, err error, queue string, args []int64, attempts int) {
	r.logger.ErrorContext(ctx, "job failed",
		"queue", queue,
		"args", args,
		"attempts", attempts,
		"error", err,
	)
}
