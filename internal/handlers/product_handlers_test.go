package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/metrics"
	"github.com/mkrylosov/orderhub/internal/models"
	"github.com/mkrylosov/orderhub/internal/repository"
)

type brokenPublisher struct{}

func (brokenPublisher) PublishEvent(_ context.Context, _ string, _ *events.Event) error {
	return fmt.Errorf("broker unavailable")
}

func newProductHandler(env *testEnv) *ProductHandler {
	return &ProductHandler{
		Catalog:  &repository.CatalogRepo{DB: env.DB},
		Producer: env.Prod,
	}
}

func TestProductCreate(t *testing.T) {
	env := newTestEnv(t)
	h := newProductHandler(env)

	rec, c := env.doJSONRequest(http.MethodPost, "/admin/products", map[string]any{
		"name": "widget", "description": "a widget", "price": 500, "stock": 10,
	})
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var prod models.Product
	require.NoError(t, env.DB.First(&prod).Error)
	require.Equal(t, int64(500), prod.Price)

	require.Equal(t, []string{events.TopicProductCreated}, env.Prod.topics)
	ev := env.Prod.last(t)
	require.Equal(t, "product.created", ev.Type)
	require.Equal(t, fmt.Sprint(prod.ID), ev.EntityID)
}

func TestProductUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	h := newProductHandler(env)
	prod := seedProduct(t, env, 500, 10)

	recUpd, cUpd := env.doJSONRequest(http.MethodPatch, "/admin/products/:id", map[string]any{
		"name": "widget v2", "description": "better", "price": 700, "stock": 5,
	})
	cUpd.SetParamNames("id")
	cUpd.SetParamValues(fmt.Sprint(prod.ID))
	require.NoError(t, h.Update(cUpd))
	require.Equal(t, http.StatusOK, recUpd.Code)

	recDel, cDel := env.doJSONRequest(http.MethodDelete, "/admin/products/:id", nil)
	cDel.SetParamNames("id")
	cDel.SetParamValues(fmt.Sprint(prod.ID))
	require.NoError(t, h.Delete(cDel))
	require.Equal(t, http.StatusOK, recDel.Code)

	require.Equal(t, []string{events.TopicProductUpdated, events.TopicProductDeleted}, env.Prod.topics)

	// the tombstone hides the product from the public path
	recGet, cGet := env.doJSONRequest(http.MethodGet, "/products/:id", nil)
	cGet.SetParamNames("id")
	cGet.SetParamValues(fmt.Sprint(prod.ID))
	require.NoError(t, h.Get(cGet))
	require.Equal(t, http.StatusNotFound, recGet.Code)
}

func TestProductCreate_DegradedPublishDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t)
	h := newProductHandler(env)
	h.Producer = brokenPublisher{}

	before := testutil.ToFloat64(metrics.PublishDegraded.WithLabelValues(events.TopicProductCreated))

	rec, c := env.doJSONRequest(http.MethodPost, "/admin/products", map[string]any{
		"name": "widget", "price": 500, "stock": 10,
	})
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	// the row committed even though delivery degraded, and the counter
	// made the degradation operator-visible
	var count int64
	require.NoError(t, env.DB.Model(&models.Product{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	after := testutil.ToFloat64(metrics.PublishDegraded.WithLabelValues(events.TopicProductCreated))
	require.Equal(t, before+1, after)
}
