package mykafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/metrics"
)

// Handler processes one decoded event. Handlers are either side-effect
// idempotent themselves or protected by the ledger; the runtime guarantees
// at most one recorded successful application, not at most one invocation.
type Handler func(ctx context.Context, ev *events.Event) error

// Ledger is the persisted processed-event store checked before dispatch.
type Ledger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, topic string, ev *events.Event) error
}

// Publisher is what the runtime needs to route exhausted messages to a
// dead-letter topic.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, ev *events.Event) error
}

type RuntimeConfig struct {
	Brokers     []string
	GroupID     string
	MaxAttempts int
	Backoff     time.Duration
}

// Runtime subscribes handlers to topics and drives the consume loop.
// Messages on one partition are dispatched sequentially; the broker fans
// partitions out across group members.
type Runtime struct {
	cfg      RuntimeConfig
	handlers map[string]Handler
	ledger   Ledger
	dlq      Publisher
	log      *slog.Logger
}

func NewRuntime(cfg RuntimeConfig, ledger Ledger, dlq Publisher, log *slog.Logger) *Runtime {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Runtime{
		cfg:      cfg,
		handlers: make(map[string]Handler),
		ledger:   ledger,
		dlq:      dlq,
		log:      log,
	}
}

// Subscribe registers a handler for a topic. Must be called before Run.
func (r *Runtime) Subscribe(topic string, h Handler) {
	r.handlers[topic] = h
}

// Run consumes until ctx is cancelled, then drains and closes. Offsets are
// committed only after a message is handled, skipped as a duplicate, or
// dead-lettered, so a crash mid-handling redelivers (at-least-once).
func (r *Runtime) Run(ctx context.Context) error {
	if len(r.handlers) == 0 {
		return fmt.Errorf("runtime: no handlers subscribed")
	}

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(r.cfg.Brokers, ","),
		"group.id":           r.cfg.GroupID,
		"enable.auto.commit": false,
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return fmt.Errorf("runtime: consumer: %w", err)
	}
	defer consumer.Close()

	topics := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		topics = append(topics, t)
	}
	if err := consumer.SubscribeTopics(topics, nil); err != nil {
		return fmt.Errorf("runtime: subscribe: %w", err)
	}
	r.log.Info("consumer runtime started", "topics", topics, "group", r.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("consumer runtime draining")
			return nil
		default:
		}

		msg, err := consumer.ReadMessage(time.Second)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.IsTimeout() {
				continue
			}
			r.log.Error("consumer read error", "error", err)
			continue
		}

		if err := r.dispatch(ctx, msg); err != nil {
			// dispatch only fails on ledger-store or dead-letter publish
			// errors; leave the offset uncommitted so the message is
			// redelivered.
			r.log.Error("dispatch failed, message will be redelivered",
				"topic", topicOf(msg), "offset", msg.TopicPartition.Offset, "error", err)
			continue
		}

		if _, err := consumer.CommitMessage(msg); err != nil {
			r.log.Error("offset commit failed", "topic", topicOf(msg), "error", err)
		}
	}
}

// dispatch applies the idempotency check, bounded retries, and the
// dead-letter path for one message. A nil return means the offset may be
// committed.
func (r *Runtime) dispatch(ctx context.Context, msg *kafka.Message) error {
	topic := topicOf(msg)

	ev, err := events.Decode(msg.Value)
	if err != nil {
		// Undecodable payloads can never succeed; dead-letter immediately.
		r.log.Error("malformed event payload", "topic", topic, "error", err)
		return r.deadLetter(ctx, topic, &events.Event{
			ID:       fmt.Sprintf("malformed-%s-%d-%d", topic, msg.TopicPartition.Partition, msg.TopicPartition.Offset),
			Type:     "malformed",
			EntityID: string(msg.Key),
			Data:     map[string]any{"raw": string(msg.Value)},
		})
	}

	seen, err := r.ledger.Seen(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	if seen {
		r.log.Info("duplicate event skipped", "topic", topic, "event_id", ev.ID)
		metrics.EventsDuplicate.WithLabelValues(topic).Inc()
		return nil
	}

	handler := r.handlers[topic]
	var handleErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if handleErr = handler(ctx, ev); handleErr == nil {
			break
		}
		r.log.Warn("handler failed",
			"topic", topic, "event_id", ev.ID, "attempt", attempt, "error", handleErr)
		if attempt < r.cfg.MaxAttempts {
			select {
			case <-time.After(r.cfg.Backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if handleErr != nil {
		return r.deadLetter(ctx, topic, ev)
	}

	if err := r.ledger.Record(ctx, topic, ev); err != nil {
		// ErrConflict: the handler recorded the event itself inside its own
		// transaction; the application already happened exactly once.
		if !errors.Is(err, apperrors.ErrConflict) {
			return fmt.Errorf("ledger record: %w", err)
		}
	}
	metrics.EventsConsumed.WithLabelValues(topic).Inc()
	return nil
}

// deadLetter is terminal and operator-visible, never a silent drop. The
// message may only be acked once the DLQ publish is acknowledged, so a
// publish failure propagates to the caller.
func (r *Runtime) deadLetter(ctx context.Context, topic string, ev *events.Event) error {
	dlqTopic := events.DeadLetterTopic(topic)
	if err := r.dlq.PublishEvent(ctx, dlqTopic, ev); err != nil {
		r.log.Error("dead-letter publish failed",
			"topic", dlqTopic, "event_id", ev.ID, "error", err)
		return fmt.Errorf("dead-letter publish: %w", err)
	}
	metrics.EventsDeadLettered.WithLabelValues(topic).Inc()
	r.log.Error("event dead-lettered", "topic", dlqTopic, "event_id", ev.ID)
	return nil
}

func topicOf(msg *kafka.Message) string {
	if msg.TopicPartition.Topic == nil {
		return ""
	}
	return *msg.TopicPartition.Topic
}
