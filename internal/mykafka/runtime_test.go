package mykafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/metrics"
)

type memLedger struct {
	seen map[string]bool
}

func newMemLedger() *memLedger { return &memLedger{seen: map[string]bool{}} }

func (m *memLedger) Seen(_ context.Context, eventID string) (bool, error) {
	return m.seen[eventID], nil
}

func (m *memLedger) Record(_ context.Context, _ string, ev *events.Event) error {
	if m.seen[ev.ID] {
		return fmt.Errorf("%w: event %s already processed", apperrors.ErrConflict, ev.ID)
	}
	m.seen[ev.ID] = true
	return nil
}

type capturePublisher struct {
	published []string
}

func (p *capturePublisher) PublishEvent(_ context.Context, topic string, _ *events.Event) error {
	p.published = append(p.published, topic)
	return nil
}

type failingPublisher struct {
	calls int
}

func (p *failingPublisher) PublishEvent(_ context.Context, _ string, _ *events.Event) error {
	p.calls++
	return fmt.Errorf("broker unavailable")
}

func newTestRuntime(t *testing.T, ledger Ledger, dlq Publisher) *Runtime {
	t.Helper()
	metrics.Init()
	return NewRuntime(RuntimeConfig{
		Brokers:     []string{"localhost:9092"},
		GroupID:     "test-group",
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	}, ledger, dlq, slog.Default())
}

func message(t *testing.T, topic string, ev *events.Event) *kafka.Message {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic},
		Key:            []byte(ev.Key()),
		Value:          payload,
	}
}

func TestDispatch_RecordsSuccessfulHandling(t *testing.T) {
	ledger := newMemLedger()
	dlq := &capturePublisher{}
	rt := newTestRuntime(t, ledger, dlq)

	var handled int
	rt.Subscribe("order.created", func(_ context.Context, _ *events.Event) error {
		handled++
		return nil
	})

	ev := events.New("order.created", "1", map[string]any{"order_id": 1})
	require.NoError(t, rt.dispatch(context.Background(), message(t, "order.created", ev)))

	require.Equal(t, 1, handled)
	require.True(t, ledger.seen[ev.ID])
	require.Empty(t, dlq.published)
}

func TestDispatch_SkipsDuplicateWithoutInvokingHandler(t *testing.T) {
	ledger := newMemLedger()
	dlq := &capturePublisher{}
	rt := newTestRuntime(t, ledger, dlq)

	var handled int
	rt.Subscribe("order.created", func(_ context.Context, _ *events.Event) error {
		handled++
		return nil
	})

	ev := events.New("order.created", "1", map[string]any{"order_id": 1})
	msg := message(t, "order.created", ev)

	require.NoError(t, rt.dispatch(context.Background(), msg))
	require.NoError(t, rt.dispatch(context.Background(), msg))

	require.Equal(t, 1, handled)
	require.Empty(t, dlq.published)
}

func TestDispatch_DeadLettersAfterBoundedRetries(t *testing.T) {
	ledger := newMemLedger()
	dlq := &capturePublisher{}
	rt := newTestRuntime(t, ledger, dlq)

	var attempts int
	rt.Subscribe("order.created", func(_ context.Context, _ *events.Event) error {
		attempts++
		return fmt.Errorf("downstream unavailable")
	})

	ev := events.New("order.created", "1", map[string]any{"order_id": 1})

	// a nil return means the offset gets committed: the poison message is
	// parked, not redelivered forever
	require.NoError(t, rt.dispatch(context.Background(), message(t, "order.created", ev)))

	require.Equal(t, 3, attempts)
	require.Equal(t, []string{"order.created.dlq"}, dlq.published)
	require.False(t, ledger.seen[ev.ID])
}

func TestDispatch_FailedDeadLetterPublishKeepsOffsetUncommitted(t *testing.T) {
	ledger := newMemLedger()
	dlq := &failingPublisher{}
	rt := newTestRuntime(t, ledger, dlq)

	rt.Subscribe("order.created", func(_ context.Context, _ *events.Event) error {
		return fmt.Errorf("downstream unavailable")
	})

	ev := events.New("order.created", "1", map[string]any{"order_id": 1})

	// the event reached no terminal state, so dispatch must not let the
	// offset be committed
	err := rt.dispatch(context.Background(), message(t, "order.created", ev))
	require.Error(t, err)
	require.Equal(t, 1, dlq.calls)
	require.False(t, ledger.seen[ev.ID])
}

func TestDispatch_DeadLettersMalformedPayloadImmediately(t *testing.T) {
	ledger := newMemLedger()
	dlq := &capturePublisher{}
	rt := newTestRuntime(t, ledger, dlq)

	var handled int
	rt.Subscribe("order.created", func(_ context.Context, _ *events.Event) error {
		handled++
		return nil
	})

	topic := "order.created"
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic},
		Value:          []byte("{not json"),
	}
	require.NoError(t, rt.dispatch(context.Background(), msg))

	require.Zero(t, handled)
	require.Equal(t, []string{"order.created.dlq"}, dlq.published)
}

func TestDispatch_ToleratesHandlerRecordedEvent(t *testing.T) {
	// handlers that write the ledger row inside their own transaction make
	// the runtime's follow-up record a duplicate; that is still a success
	ledger := newMemLedger()
	dlq := &capturePublisher{}
	rt := newTestRuntime(t, ledger, dlq)

	var ev *events.Event
	rt.Subscribe("order.created", func(ctx context.Context, got *events.Event) error {
		return ledger.Record(ctx, "order.created", got)
	})

	ev = events.New("order.created", "1", map[string]any{"order_id": 1})
	require.NoError(t, rt.dispatch(context.Background(), message(t, "order.created", ev)))
	require.True(t, ledger.seen[ev.ID])
	require.Empty(t, dlq.published)
}
