package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/models"
)

// CatalogRepo owns products. The order ledger reads it only inside its own
// transaction; everything else goes through these methods.
type CatalogRepo struct {
	DB *gorm.DB
}

func (r *CatalogRepo) GetPriceAndStock(ctx context.Context, productID uint) (price, stock int64, err error) {
	var p models.Product
	if err := r.DB.WithContext(ctx).First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, fmt.Errorf("%w: product %d", apperrors.ErrNotFound, productID)
		}
		return 0, 0, err
	}
	return p.Price, p.Stock, nil
}

func (r *CatalogRepo) Create(ctx context.Context, p *models.Product) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name required", apperrors.ErrValidation)
	}
	if p.Price < 0 || p.Stock < 0 {
		return fmt.Errorf("%w: price and stock must be >= 0", apperrors.ErrValidation)
	}
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *CatalogRepo) Update(ctx context.Context, p *models.Product) error {
	res := r.DB.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"name":        p.Name,
			"description": p.Description,
			"price":       p.Price,
			"stock":       p.Stock,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: product %d", apperrors.ErrNotFound, p.ID)
	}
	return nil
}

func (r *CatalogRepo) SoftDelete(ctx context.Context, productID uint) error {
	res := r.DB.WithContext(ctx).Delete(&models.Product{}, productID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: product %d", apperrors.ErrNotFound, productID)
	}
	return nil
}

func (r *CatalogRepo) Get(ctx context.Context, productID uint) (*models.Product, error) {
	var p models.Product
	if err := r.DB.WithContext(ctx).First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", apperrors.ErrNotFound, productID)
		}
		return nil, err
	}
	return &p, nil
}

func (r *CatalogRepo) List(ctx context.Context, limit, offset int) ([]models.Product, int64, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Product{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.Product
	if err := r.DB.WithContext(ctx).
		Order("id ASC").Limit(limit).Offset(offset).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
