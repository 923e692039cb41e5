package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/twmb/franz-go/pkg/kgo"
)

// producer is the subset of *kgo.Client the publisher needs.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaPublisher produces events as JSON records keyed by user id.
type KafkaPublisher struct {
	client producer
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects a franz-go client to brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, err
	}
	return newKafkaPublisher(client, topic, logger), nil
}

func newKafkaPublisher(client producer, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic, logger: logger}
}

// Emit enqueues the record asynchronously. The request context is not used for
// the produce call so a finished request does not cancel delivery.
func (p *KafkaPublisher) Emit(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	value, err := json.Marshal(e)
	if err != nil {
		p.logger.ErrorContext(ctx, "encode audit event", "error", err, "action", e.Action)
		return
	}
	record := &kgo.Record{
		Topic:     p.topic,
		Key:       []byte(e.UserID),
		Value:     value,
		Timestamp: e.Timestamp,
	}
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("produce audit event", "error", err, "topic", r.Topic, "action", e.Action)
		}
	})
}

// Close flushes buffered records, waiting at most until ctx ends, and closes the client.
func (p *KafkaPublisher) Close(ctx context.Context) {
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("flush audit events", "error", err)
	}
	p.client.Close()
}
