// Package broker provides the durable message transports behind the job queue.
package broker

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed broker or subscription.
var ErrClosed = errors.New("broker is closed")

// Delivery is one message handed to a consumer. It must be acknowledged
// through the subscription that produced it.
type Delivery struct {
	Queue string
	Body  []byte

	ack func(ctx context.Context) error
}

// Broker publishes to and subscribes on named queues.
type Broker interface {
	Publish(ctx context.Context, queue string, body []byte) error
	Subscribe(ctx context.Context, queue string) (Subscription, error)
	Close() error
}

// Subscription yields deliveries one at a time. Consumers sharing a queue
// receive disjoint deliveries.
type Subscription interface {
	// Next blocks until a delivery is available or ctx is done.
	Next(ctx context.Context) (*Delivery, error)
	// Ack marks the delivery as processed so it is not redelivered.
	Ack(ctx context.Context, d *Delivery) error
	Close() error
}
