package broker

import (
	"context"
	"fmt"
	"sync"
)

type memoryQueue struct {
	mu     sync.Mutex
	items  [][]byte
	signal chan struct{}
}

func (q *memoryQueue) push(body []byte) {
	q.mu.Lock()
	q.items = append(q.items, body)
	q.mu.Unlock()
	q.wake()
}

func (q *memoryQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	body := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.wake()
	}
	return body, true
}

func (q *memoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// MemoryBroker is an in-process broker. Every queue is a FIFO shared by its
// subscribers; a delivery that is never acknowledged is requeued when its
// subscription closes.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]*memoryQueue
	closed bool
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string]*memoryQueue)}
}

func (b *MemoryBroker) queue(name string) (*memoryQueue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{signal: make(chan struct{}, 1)}
		b.queues[name] = q
	}
	return q, nil
}

// Publish appends body to the queue.
func (b *MemoryBroker) Publish(_ context.Context, queue string, body []byte) error {
	q, err := b.queue(queue)
	if err != nil {
		return err
	}
	msg := make([]byte, len(body))
	copy(msg, body)
	q.push(msg)
	return nil
}

// Subscribe attaches a competing consumer to the queue.
func (b *MemoryBroker) Subscribe(_ context.Context, queue string) (Subscription, error) {
	q, err := b.queue(queue)
	if err != nil {
		return nil, err
	}
	return &memorySubscription{name: queue, q: q, inflight: make(map[*Delivery]struct{})}, nil
}

// Len returns the number of messages waiting on a queue.
func (b *MemoryBroker) Len(queue string) int {
	q, err := b.queue(queue)
	if err != nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further publishes and subscriptions.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type memorySubscription struct {
	name string
	q    *memoryQueue

	mu       sync.Mutex
	inflight map[*Delivery]struct{}
	closed   bool
}

func (s *memorySubscription) Next(ctx context.Context) (*Delivery, error) {
	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		if body, ok := s.q.pop(); ok {
			d := &Delivery{Queue: s.name, Body: body}
			d.ack = func(context.Context) error {
				s.mu.Lock()
				defer s.mu.Unlock()
				delete(s.inflight, d)
				return nil
			}
			s.mu.Lock()
			s.inflight[d] = struct{}{}
			s.mu.Unlock()
			return d, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.q.signal:
		}
	}
}

func (s *memorySubscription) Ack(ctx context.Context, d *Delivery) error {
	if d == nil || d.ack == nil {
		return fmt.Errorf("delivery does not belong to queue %s", s.name)
	}
	return d.ack(ctx)
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for d := range s.inflight {
		s.q.push(d.Body)
	}
	s.inflight = nil
	return nil
}
