package order

import (
	"context"
	"fmt"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/logging"
	"github.com/mkrylosov/orderhub/internal/metrics"
	"github.com/mkrylosov/orderhub/internal/models"
	"github.com/mkrylosov/orderhub/internal/repository"
)

type Publisher interface {
	PublishEvent(ctx context.Context, topic string, ev *events.Event) error
}

type Service struct {
	Repo      *repository.OrderRepo
	Publisher Publisher
}

type ItemRequest struct {
	ProductID uint  `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// PlaceOrder commits the order transaction, then emits order.created. The
// publish happens strictly after commit: a rolled-back order never produces
// an event, and a failed publish never rolls back the order.
func (s *Service) PlaceOrder(ctx context.Context, userID uint, items []ItemRequest) (*models.Order, error) {
	placed := make([]repository.PlaceItem, len(items))
	for i, it := range items {
		placed[i] = repository.PlaceItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	ord, err := s.Repo.PlaceOrder(ctx, userID, placed)
	if err != nil {
		return nil, err
	}
	metrics.OrdersPlaced.Inc()

	s.emit(ctx, events.TopicOrderCreated, snapshot(ord, "created"))
	return ord, nil
}

// CancelOrder soft-deletes and emits the compensating order.deleted event.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID uint) (*models.Order, error) {
	ord, err := s.Repo.CancelOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.TopicOrderDeleted, snapshot(ord, "cancelled"))
	return ord, nil
}

func (s *Service) RestoreOrder(ctx context.Context, orderID, userID uint) (*models.Order, error) {
	ord, err := s.Repo.RestoreOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.TopicOrderUpdated, snapshot(ord, "restored"))
	return ord, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID, userID uint) (*models.Order, error) {
	return s.Repo.GetOrder(ctx, orderID, userID)
}

func (s *Service) ListOrders(ctx context.Context, userID uint, limit, offset int) ([]models.Order, error) {
	return s.Repo.ListOrders(ctx, userID, limit, offset)
}

func (s *Service) ListTrashed(ctx context.Context, userID uint, limit, offset int) ([]models.Order, error) {
	return s.Repo.ListTrashed(ctx, userID, limit, offset)
}

// emit publishes after commit. Exhausted retries are a degraded-delivery
// condition for operators, never a request failure.
func (s *Service) emit(ctx context.Context, topic string, ev *events.Event) {
	if err := s.Publisher.PublishEvent(ctx, topic, ev); err != nil {
		metrics.PublishDegraded.WithLabelValues(topic).Inc()
		logging.FromContext(ctx).Error("event delivery degraded",
			"topic", topic, "event_id", ev.ID, "entity_id", ev.EntityID,
			"error", fmt.Errorf("%w: %v", apperrors.ErrDeliveryDegraded, err))
	}
}

func snapshot(ord *models.Order, change string) *events.Event {
	items := make([]map[string]any, len(ord.Items))
	for i, it := range ord.Items {
		items[i] = map[string]any{
			"product_id": it.ProductID,
			"quantity":   it.Quantity,
			"unit_price": it.UnitPrice,
		}
	}
	return events.New("order."+change, fmt.Sprint(ord.ID), map[string]any{
		"order_id":    ord.ID,
		"user_id":     ord.UserID,
		"total_price": ord.TotalPrice,
		"items":       items,
		"change":      change,
	})
}
