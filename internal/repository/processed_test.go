package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/models"
)

func TestProcessedLedger_RecordIsExactlyOnce(t *testing.T) {
	db := initTestDB(t)
	repo := &ProcessedRepo{DB: db}
	ctx := context.Background()

	ev := events.New("order.created", "42", map[string]any{"order_id": 42})

	seen, err := repo.Seen(ctx, ev.ID)
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, repo.Record(ctx, "order.created", ev))

	seen, err = repo.Seen(ctx, ev.ID)
	require.NoError(t, err)
	require.True(t, seen)

	err = repo.Record(ctx, "order.created", ev)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRunIdempotent_SecondDeliveryHasNoSideEffect(t *testing.T) {
	db := initTestDB(t)
	repo := &ProcessedRepo{DB: db}
	ctx := context.Background()

	ev := events.New("order.created", "42", map[string]any{"order_id": 42, "user_id": 7})

	apply := func(tx *gorm.DB) error {
		return tx.Create(&models.Notification{UserID: 7, Kind: "order_confirmation", Subject: "placed"}).Error
	}

	require.NoError(t, repo.RunIdempotent(ctx, "order.created", ev, apply))

	err := repo.RunIdempotent(ctx, "order.created", ev, apply)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}
