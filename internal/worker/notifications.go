package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/logging"
	"github.com/mkrylosov/orderhub/internal/models"
	"github.com/mkrylosov/orderhub/internal/repository"
)

// Notifier turns lifecycle events into notification rows. Each handler
// writes its side effect and the processed-event record in one transaction,
// so a redelivered event produces zero additional rows.
type Notifier struct {
	Processed *repository.ProcessedRepo
}

func (n *Notifier) HandleOrderCreated(ctx context.Context, ev *events.Event) error {
	return n.enqueue(ctx, events.TopicOrderCreated, ev, "order_confirmation", "Your order has been placed")
}

func (n *Notifier) HandleOrderDeleted(ctx context.Context, ev *events.Event) error {
	return n.enqueue(ctx, events.TopicOrderDeleted, ev, "order_cancelled", "Your order has been cancelled")
}

func (n *Notifier) HandleUserRegistered(ctx context.Context, ev *events.Event) error {
	return n.enqueue(ctx, events.TopicUserRegistered, ev, "welcome", "Welcome to the shop")
}

func (n *Notifier) HandleResetRequested(ctx context.Context, ev *events.Event) error {
	return n.enqueue(ctx, events.TopicPasswordResetRequested, ev, "password_reset", "Password reset requested")
}

func (n *Notifier) HandlePasswordChanged(ctx context.Context, ev *events.Event) error {
	return n.enqueue(ctx, events.TopicPasswordChanged, ev, "password_changed", "Your password was changed")
}

func (n *Notifier) enqueue(ctx context.Context, topic string, ev *events.Event, kind, subject string) error {
	userID, err := userIDFrom(ev)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}

	err = n.Processed.RunIdempotent(ctx, topic, ev, func(tx *gorm.DB) error {
		return tx.Create(&models.Notification{
			UserID:  userID,
			Kind:    kind,
			Subject: subject,
			Payload: string(payload),
		}).Error
	})
	if errors.Is(err, apperrors.ErrConflict) {
		logging.FromContext(ctx).Info("notification already enqueued", "event_id", ev.ID, "kind", kind)
		return nil
	}
	return err
}

func userIDFrom(ev *events.Event) (uint, error) {
	v, ok := ev.Data["user_id"]
	if !ok {
		return 0, fmt.Errorf("event %s: missing user_id", ev.ID)
	}
	// JSON numbers decode as float64.
	switch id := v.(type) {
	case float64:
		return uint(id), nil
	case string:
		var parsed uint
		if _, err := fmt.Sscanf(id, "%d", &parsed); err != nil {
			return 0, fmt.Errorf("event %s: bad user_id %q", ev.ID, id)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("event %s: bad user_id type %T", ev.ID, v)
	}
}
