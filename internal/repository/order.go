package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/models"
)

type OrderRepo struct {
	DB *gorm.DB
}

type PlaceItem struct {
	ProductID uint
	Quantity  int64
}

// forUpdate adds SELECT ... FOR UPDATE on dialects that support it. The
// sqlite test dialect serializes writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// PlaceOrder commits the order, its items, and the stock decrement in a
// single transaction. Product rows are locked before the stock check so two
// concurrent orders cannot both observe sufficient stock.
func (r *OrderRepo) PlaceOrder(ctx context.Context, userID uint, items []PlaceItem) (*models.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: items required", apperrors.ErrValidation)
	}
	for i := range items {
		if items[i].ProductID == 0 {
			return nil, fmt.Errorf("%w: product_id required", apperrors.ErrValidation)
		}
		if items[i].Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be > 0", apperrors.ErrValidation)
		}
	}

	var order models.Order
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total int64
		orderItems := make([]models.OrderItem, 0, len(items))

		for _, it := range items {
			var p models.Product
			if err := forUpdate(tx).First(&p, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: product %d", apperrors.ErrNotFound, it.ProductID)
				}
				return err
			}

			if p.Stock < it.Quantity {
				return fmt.Errorf("%w: insufficient stock for product %d: requested=%d, available=%d",
					apperrors.ErrConflict, it.ProductID, it.Quantity, p.Stock)
			}

			if err := tx.Model(&models.Product{}).
				Where("id = ?", p.ID).
				Update("stock", gorm.Expr("stock - ?", it.Quantity)).Error; err != nil {
				return err
			}

			total += p.Price * it.Quantity
			orderItems = append(orderItems, models.OrderItem{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
			})
		}

		order = models.Order{UserID: userID, TotalPrice: total}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for i := range orderItems {
			orderItems[i].OrderID = order.ID
		}
		if err := tx.Create(&orderItems).Error; err != nil {
			return err
		}
		order.Items = orderItems
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder soft-deletes the order and its items. The rows stay readable
// through the trashed query path for audit.
func (r *OrderRepo) CancelOrder(ctx context.Context, orderID, userID uint) (*models.Order, error) {
	var order models.Order
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").
			Where("id = ? AND user_id = ?", orderID, userID).
			First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", apperrors.ErrNotFound, orderID)
			}
			return err
		}
		if err := tx.Delete(&models.Order{}, order.ID).Error; err != nil {
			return err
		}
		return tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// RestoreOrder clears the tombstone on a trashed order and its items.
func (r *OrderRepo) RestoreOrder(ctx context.Context, orderID, userID uint) (*models.Order, error) {
	var order models.Order
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("id = ? AND user_id = ? AND deleted_at IS NOT NULL", orderID, userID).
			First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: trashed order %d", apperrors.ErrNotFound, orderID)
			}
			return err
		}
		if err := tx.Unscoped().Model(&models.Order{}).
			Where("id = ?", order.ID).
			Update("deleted_at", nil).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Model(&models.OrderItem{}).
			Where("order_id = ?", order.ID).
			Update("deleted_at", nil).Error; err != nil {
			return err
		}
		return tx.Preload("Items").First(&order, order.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepo) GetOrder(ctx context.Context, orderID, userID uint) (*models.Order, error) {
	var order models.Order
	err := r.DB.WithContext(ctx).Preload("Items").
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", apperrors.ErrNotFound, orderID)
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepo) ListOrders(ctx context.Context, userID uint, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := r.DB.WithContext(ctx).Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListTrashed is the audit view over soft-deleted orders.
func (r *OrderRepo) ListTrashed(ctx context.Context, userID uint, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := r.DB.WithContext(ctx).Unscoped().
		Where("user_id = ? AND deleted_at IS NOT NULL", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
