package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/shot-warden/internal/broker"
)

// Queue pushes jobs onto the broker. It implements core.Pusher.
type Queue struct {
	broker broker.Broker
	logger *slog.Logger
}

// New creates a Queue publishing through b.
func New(b broker.Broker, logger *slog.Logger) *Queue {
	return &Queue{broker: b, logger: logger}
}

// Push enqueues one envelope per id with zero attempts.
func (q *Queue) Push(ctx context.Context, name string, ids ...int64) error {
	for _, id := range ids {
		if err := q.publish(ctx, name, Envelope{Args: []int64{id}}); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		q.logger.Debug("pushed jobs", "queue", name, "count", len(ids))
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, name string, env Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	if err := q.broker.Publish(ctx, name, body); err != nil {
		return fmt.Errorf("failed to push job %v to %s: %w", env.Args, name, err)
	}
	return nil
}
