package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig configures the Kafka-compatible broker.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// KafkaBroker maps every queue onto a topic. Each subscription is its own
// consumer-group member with auto-commit disabled, so an acknowledgement is
// an explicit offset commit and unacknowledged records are redelivered after
// a rebalance.
type KafkaBroker struct {
	cfg      KafkaConfig
	producer *kgo.Client
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[*kafkaSubscription]struct{}
	closed bool
}

// NewKafkaBroker connects a producer client to the seed brokers.
func NewKafkaBroker(cfg KafkaConfig, logger *slog.Logger) (*KafkaBroker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	if cfg.GroupPrefix == "" {
		cfg.GroupPrefix = "shotwarden"
	}

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaBroker{
		cfg:      cfg,
		producer: producer,
		logger:   logger.With("component", "kafka_broker"),
		subs:     make(map[*kafkaSubscription]struct{}),
	}, nil
}

// Publish writes body to the queue topic and waits for the broker acknowledgement.
func (b *KafkaBroker) Publish(ctx context.Context, queue string, body []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	record := &kgo.Record{Topic: queue, Value: body}
	if err := b.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", queue, err)
	}
	return nil
}

// Subscribe joins the consumer group of the queue.
func (b *KafkaBroker) Subscribe(_ context.Context, queue string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	group := b.cfg.GroupPrefix + "-" + queue
	client, err := kgo.NewClient(
		kgo.SeedBrokers(b.cfg.Brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(queue),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %s: %w", queue, err)
	}

	sub := &kafkaSubscription{broker: b, queue: queue, client: client}
	b.subs[sub] = struct{}{}
	b.logger.Info("joined consumer group", "queue", queue, "group", group)
	return sub, nil
}

// Close shuts down every subscription and the producer.
func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*kafkaSubscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	b.producer.Close()
	return nil
}

type kafkaSubscription struct {
	broker *KafkaBroker
	queue  string
	client *kgo.Client

	buffered []*kgo.Record
}

// Next polls a single record at a time.
func (s *kafkaSubscription) Next(ctx context.Context) (*Delivery, error) {
	for len(s.buffered) == 0 {
		fetches := s.client.PollRecords(ctx, 1)
		if fetches.IsClientClosed() {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) || errors.Is(fe.Err, context.DeadlineExceeded) {
				return nil, fe.Err
			}
			s.broker.logger.Warn("fetch error", "queue", s.queue, "partition", fe.Partition, "error", fe.Err)
		}
		s.buffered = append(s.buffered, fetches.Records()...)
	}

	record := s.buffered[0]
	s.buffered = s.buffered[1:]

	d := &Delivery{Queue: s.queue, Body: record.Value}
	d.ack = func(ctx context.Context) error {
		if err := s.client.CommitRecords(ctx, record); err != nil {
			return fmt.Errorf("failed to commit offset on %s: %w", s.queue, err)
		}
		return nil
	}
	return d, nil
}

func (s *kafkaSubscription) Ack(ctx context.Context, d *Delivery) error {
	if d == nil || d.ack == nil {
		return fmt.Errorf("delivery does not belong to queue %s", s.queue)
	}
	return d.ack(ctx)
}

func (s *kafkaSubscription) Close() error {
	s.broker.mu.Lock()
	delete(s.broker.subs, s)
	s.broker.mu.Unlock()
	s.client.Close()
	return nil
}
