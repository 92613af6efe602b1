package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/models"
)

// These tests run against a real postgres so the SELECT ... FOR UPDATE
// branch of forUpdate is exercised. They are skipped unless
// ORDER_TEST_DATABASE_URL points at a disposable database.

func initPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("ORDER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ORDER_TEST_DATABASE_URL is required for postgres tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.Order{}, &models.OrderItem{}))

	t.Cleanup(func() {
		db.Exec("TRUNCATE TABLE order_items, orders, products RESTART IDENTITY CASCADE")
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestPlaceOrder_RowLockSerializesConcurrentOrders(t *testing.T) {
	db := initPostgresDB(t)
	repo := &OrderRepo{DB: db}
	ctx := context.Background()

	prod := models.Product{Name: fmt.Sprintf("widget-%d", time.Now().UnixNano()), Price: 500, Stock: 1}
	require.NoError(t, db.Create(&prod).Error)

	const workers = 4
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.PlaceOrder(ctx, 1, []PlaceItem{{ProductID: prod.ID, Quantity: 1}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, conflicted int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, apperrors.ErrConflict)
			conflicted++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, workers-1, conflicted)

	var after models.Product
	require.NoError(t, db.First(&after, prod.ID).Error)
	require.Equal(t, int64(0), after.Stock)

	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.Equal(t, int64(1), orders)
}
