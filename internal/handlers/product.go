package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/logging"
	"github.com/mkrylosov/orderhub/internal/models"
	"github.com/mkrylosov/orderhub/internal/repository"
	"github.com/mkrylosov/orderhub/internal/util"
)

type ProductHandler struct {
	Catalog  *repository.CatalogRepo
	Producer Publisher
}

func (h *ProductHandler) publishProduct(c echo.Context, topic, eventType string, p *models.Product) {
	publishEvent(c, h.Producer, topic, events.New(eventType, fmt.Sprint(p.ID), map[string]any{
		"product_id":  p.ID,
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"stock":       p.Stock,
	}))
}

func (h *ProductHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	product, err := h.Catalog.Get(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) List(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	items, total, err := h.Catalog.List(c.Request().Context(), limit, offset)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ProductHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product_create")

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Price       int64  `json:"price"`
		Stock       int64  `json:"stock"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("product_create_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	prod := models.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	}
	if err := h.Catalog.Create(ctx, &prod); err != nil {
		l.Warn("product_create_failed", "error", err)
		return errorResponse(c, err)
	}

	h.publishProduct(c, events.TopicProductCreated, "product.created", &prod)

	l.Info("product_create_success", "product_id", prod.ID)
	return c.JSON(http.StatusCreated, prod)
}

func (h *ProductHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product_update")

	id, err := parseID(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Price       int64  `json:"price"`
		Stock       int64  `json:"stock"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("product_update_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	prod := models.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	}
	if err := h.Catalog.Update(ctx, &prod); err != nil {
		l.Warn("product_update_failed", "product_id", id, "error", err)
		return errorResponse(c, err)
	}

	h.publishProduct(c, events.TopicProductUpdated, "product.updated", &prod)

	l.Info("product_update_success", "product_id", id)
	return c.JSON(http.StatusOK, prod)
}

func (h *ProductHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product_delete")

	id, err := parseID(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	prod, err := h.Catalog.Get(ctx, id)
	if err != nil {
		return errorResponse(c, err)
	}
	if err := h.Catalog.SoftDelete(ctx, id); err != nil {
		l.Warn("product_delete_failed", "product_id", id, "error", err)
		return errorResponse(c, err)
	}

	h.publishProduct(c, events.TopicProductDeleted, "product.deleted", prod)

	l.Info("product_delete_success", "product_id", id)
	return c.JSON(http.StatusOK, echo.Map{"status": "deleted", "id": id})
}
