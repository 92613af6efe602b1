package mykafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/metrics"
)

const (
	flushTimeout       = 5000
	deliveryTimeout    = 5 * time.Second
	maxPublishAttempts = 3
	publishBackoff     = 200 * time.Millisecond
)

type Producer struct {
	producer *kafka.Producer
}

func NewProducer(address []string) (*Producer, error) {
	config := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(address, ","),
		"acks":               "all",
		"enable.idempotence": true,
	}
	p, err := kafka.NewProducer(config)
	if err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}

	return &Producer{producer: p}, nil
}

// PublishEvent delivers the event to its topic keyed by entity identity,
// retrying transient failures. It is called only after the originating
// transaction has committed; delivery is at-least-once.
func (p *Producer) PublishEvent(ctx context.Context, topic string, ev *events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}

	err = withBackoff(ctx, maxPublishAttempts, publishBackoff, func() error {
		return p.produceOnce(ctx, topic, ev.Key(), data)
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// withBackoff retries fn with a linearly growing pause between attempts.
// The final failure returns immediately: there is no pause with nothing
// left to wait for.
func withBackoff(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < attempts {
			select {
			case <-time.After(backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (p *Producer) produceOnce(ctx context.Context, topic, key string, data []byte) error {
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          data,
	}

	deliveryChan := make(chan kafka.Event, 1)
	defer close(deliveryChan)

	if err := p.producer.Produce(msg, deliveryChan); err != nil {
		return fmt.Errorf("kafka: Produce failed: %w", err)
	}

	select {
	case e := <-deliveryChan:
		if m := e.(*kafka.Message); m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka: delivery failed: %w", m.TopicPartition.Error)
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(deliveryTimeout):
		return fmt.Errorf("kafka: delivery timeout")
	}

	return nil
}

func (p *Producer) Close() {
	p.producer.Flush(flushTimeout)
	p.producer.Close()
}

// EnsureTopics provisions every domain topic with the fixed partition count
// so per-key ordering survives a fresh broker.
func EnsureTopics(ctx context.Context, address []string, topics []string) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": strings.Join(address, ","),
	})
	if err != nil {
		return fmt.Errorf("kafka: admin client: %w", err)
	}
	defer admin.Close()

	specs := make([]kafka.TopicSpecification, 0, len(topics)*2)
	for _, t := range topics {
		specs = append(specs,
			kafka.TopicSpecification{
				Topic:             t,
				NumPartitions:     events.NumPartitions,
				ReplicationFactor: events.ReplicationFactor,
			},
			kafka.TopicSpecification{
				Topic:             events.DeadLetterTopic(t),
				NumPartitions:     events.NumPartitions,
				ReplicationFactor: events.ReplicationFactor,
			},
		)
	}

	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("kafka: create topics: %w", err)
	}
	for _, res := range results {
		if res.Error.Code() != kafka.ErrNoError && res.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("kafka: create topic %s: %v", res.Topic, res.Error)
		}
	}
	return nil
}
