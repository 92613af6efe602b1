package worker

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/models"
	"github.com/mkrylosov/orderhub/internal/repository"
)

func newTestNotifier(t *testing.T) (*Notifier, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.ProcessedEvent{}, &models.Notification{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return &Notifier{Processed: &repository.ProcessedRepo{DB: db}}, db
}

func TestHandleOrderCreated_RedeliveryProducesOneNotification(t *testing.T) {
	n, db := newTestNotifier(t)
	ctx := context.Background()

	ev := events.New("order.created", "42", map[string]any{
		"order_id":    float64(42),
		"user_id":     float64(7),
		"total_price": float64(5000),
	})

	require.NoError(t, n.HandleOrderCreated(ctx, ev))
	// redelivery of the same event id is absorbed
	require.NoError(t, n.HandleOrderCreated(ctx, ev))

	var notifications []models.Notification
	require.NoError(t, db.Find(&notifications).Error)
	require.Len(t, notifications, 1)
	require.Equal(t, uint(7), notifications[0].UserID)
	require.Equal(t, "order_confirmation", notifications[0].Kind)

	var ledger int64
	require.NoError(t, db.Model(&models.ProcessedEvent{}).Count(&ledger).Error)
	require.Equal(t, int64(1), ledger)
}

func TestHandlers_KindsPerTopic(t *testing.T) {
	n, db := newTestNotifier(t)
	ctx := context.Background()

	data := map[string]any{"user_id": float64(3)}
	require.NoError(t, n.HandleOrderDeleted(ctx, events.New("order.cancelled", "1", data)))
	require.NoError(t, n.HandleUserRegistered(ctx, events.New("user.registered", "3", data)))
	require.NoError(t, n.HandleResetRequested(ctx, events.New("user.password_reset_requested", "3", data)))
	require.NoError(t, n.HandlePasswordChanged(ctx, events.New("user.password_changed", "3", data)))

	var kinds []string
	require.NoError(t, db.Model(&models.Notification{}).Order("id").Pluck("kind", &kinds).Error)
	require.Equal(t, []string{"order_cancelled", "welcome", "password_reset", "password_changed"}, kinds)
}

func TestEnqueue_RejectsEventWithoutUserID(t *testing.T) {
	n, db := newTestNotifier(t)

	ev := events.New("order.created", "42", map[string]any{"order_id": float64(42)})
	require.Error(t, n.HandleOrderCreated(context.Background(), ev))

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	require.Zero(t, count)
}
