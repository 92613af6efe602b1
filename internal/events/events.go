package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TopicOrderCreated = "order.created"
	TopicOrderUpdated = "order.updated"
	TopicOrderDeleted = "order.deleted"

	TopicUserRegistered         = "user.registered"
	TopicPasswordResetRequested = "user.password_reset_requested"
	TopicPasswordChanged        = "user.password_changed"

	TopicProductCreated = "product.created"
	TopicProductUpdated = "product.updated"
	TopicProductDeleted = "product.deleted"
)

// Every topic is provisioned with the same partition count so per-entity
// keys keep their ordering guarantee across environments.
const (
	NumPartitions     = 3
	ReplicationFactor = 1
)

func AllTopics() []string {
	return []string{
		TopicOrderCreated, TopicOrderUpdated, TopicOrderDeleted,
		TopicUserRegistered, TopicPasswordResetRequested, TopicPasswordChanged,
		TopicProductCreated, TopicProductUpdated, TopicProductDeleted,
	}
}

func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}

// Event is the wire format shared by every topic. ID doubles as the
// consumer-side idempotency key; EntityID is the partition key, so all
// events about one entity land on one partition in commit order.
type Event struct {
	ID         string         `json:"event_id"`
	Type       string         `json:"event_type"`
	EntityID   string         `json:"entity_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Version    int            `json:"version"`
	Data       map[string]any `json:"data"`
}

func New(eventType, entityID string, data map[string]any) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
		Version:    1,
		Data:       data,
	}
}

func (e *Event) Key() string {
	return e.EntityID
}

func Decode(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("events: decode payload: %w", err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("events: payload missing event_id or event_type")
	}
	return &ev, nil
}
