package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/models"
)

// ProcessedRepo is the idempotency ledger keyed by event id. Pruning is an
// external retention job.
type ProcessedRepo struct {
	DB *gorm.DB
}

func (r *ProcessedRepo) Seen(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Record inserts the ledger row; a duplicate key means another delivery won
// the race and comes back as ErrConflict.
func (r *ProcessedRepo) Record(ctx context.Context, topic string, ev *events.Event) error {
	return recordTx(r.DB.WithContext(ctx), topic, ev)
}

// RunIdempotent runs fn and the ledger insert in one transaction, closing
// the check-then-act race between a handler's side effect and the record of
// it. An already-recorded event returns ErrConflict with no side effect.
func (r *ProcessedRepo) RunIdempotent(ctx context.Context, topic string, ev *events.Event, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := recordTx(tx, topic, ev); err != nil {
			return err
		}
		return fn(tx)
	})
}

func recordTx(tx *gorm.DB, topic string, ev *events.Event) error {
	rec := models.ProcessedEvent{
		EventID:   ev.ID,
		Topic:     topic,
		EventType: ev.Type,
		EntityID:  ev.EntityID,
	}
	if err := tx.Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: event %s already processed", apperrors.ErrConflict, ev.ID)
		}
		return err
	}
	return nil
}
