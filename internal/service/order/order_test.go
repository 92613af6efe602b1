package order

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/metrics"
	"github.com/mkrylosov/orderhub/internal/models"
	"github.com/mkrylosov/orderhub/internal/repository"
)

type capturePublisher struct {
	topics []string
	fail   bool
}

func (p *capturePublisher) PublishEvent(_ context.Context, topic string, _ *events.Event) error {
	if p.fail {
		return fmt.Errorf("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	return nil
}

func newTestService(t *testing.T) (*Service, *capturePublisher, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.Order{}, &models.OrderItem{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	pub := &capturePublisher{}
	return &Service{Repo: &repository.OrderRepo{DB: db}, Publisher: pub}, pub, db
}

func TestPlaceOrder_EmitsAfterCommit(t *testing.T) {
	svc, pub, db := newTestService(t)
	ctx := context.Background()

	prod := models.Product{Name: "widget", Price: 500, Stock: 10}
	require.NoError(t, db.Create(&prod).Error)

	ord, err := svc.PlaceOrder(ctx, 1, []ItemRequest{{ProductID: prod.ID, Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, int64(1000), ord.TotalPrice)
	require.Equal(t, []string{events.TopicOrderCreated}, pub.topics)
}

func TestPlaceOrder_FailedTransactionEmitsNothing(t *testing.T) {
	svc, pub, db := newTestService(t)
	ctx := context.Background()

	prod := models.Product{Name: "widget", Price: 500, Stock: 1}
	require.NoError(t, db.Create(&prod).Error)

	_, err := svc.PlaceOrder(ctx, 1, []ItemRequest{{ProductID: prod.ID, Quantity: 5}})
	require.Error(t, err)
	require.Empty(t, pub.topics)
}

func TestPlaceOrder_DegradedDeliveryDoesNotFailTheOrder(t *testing.T) {
	svc, pub, db := newTestService(t)
	pub.fail = true
	ctx := context.Background()

	prod := models.Product{Name: "widget", Price: 500, Stock: 10}
	require.NoError(t, db.Create(&prod).Error)

	before := testutil.ToFloat64(metrics.PublishDegraded.WithLabelValues(events.TopicOrderCreated))

	ord, err := svc.PlaceOrder(ctx, 1, []ItemRequest{{ProductID: prod.ID, Quantity: 1}})
	require.NoError(t, err)
	require.NotZero(t, ord.ID)

	// the committed order stands; the degradation is an operator signal
	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	after := testutil.ToFloat64(metrics.PublishDegraded.WithLabelValues(events.TopicOrderCreated))
	require.Equal(t, before+1, after)
}
