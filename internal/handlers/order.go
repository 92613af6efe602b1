package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mkrylosov/orderhub/internal/logging"
	"github.com/mkrylosov/orderhub/internal/middleware/auth"
	"github.com/mkrylosov/orderhub/internal/service/order"
	"github.com/mkrylosov/orderhub/internal/util"
)

type OrderHandler struct {
	Orders *order.Service
}

func (h *OrderHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_create")

	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}

	var req struct {
		Items []order.ItemRequest `json:"items"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("order_create_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	ord, err := h.Orders.PlaceOrder(ctx, userID, req.Items)
	if err != nil {
		l.Warn("order_create_failed", "error", err)
		return errorResponse(c, err)
	}

	l.Info("order_create_success", "order_id", ord.ID, "total_price", ord.TotalPrice)
	return c.JSON(http.StatusCreated, ord)
}

func (h *OrderHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	ord, err := h.Orders.GetOrder(ctx, id, userID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, ord)
}

func (h *OrderHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	orders, err := h.Orders.ListOrders(ctx, userID, limit, offset)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": orders, "page": page, "size": limit})
}

func (h *OrderHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_cancel")

	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	ord, err := h.Orders.CancelOrder(ctx, id, userID)
	if err != nil {
		l.Warn("order_cancel_failed", "order_id", id, "error", err)
		return errorResponse(c, err)
	}

	l.Info("order_cancel_success", "order_id", ord.ID)
	return c.JSON(http.StatusOK, echo.Map{"status": "cancelled", "id": ord.ID})
}

func (h *OrderHandler) Trashed(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	orders, err := h.Orders.ListTrashed(ctx, userID, limit, offset)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": orders, "page": page, "size": limit})
}

func (h *OrderHandler) Restore(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_restore")

	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	ord, err := h.Orders.RestoreOrder(ctx, id, userID)
	if err != nil {
		l.Warn("order_restore_failed", "order_id", id, "error", err)
		return errorResponse(c, err)
	}

	l.Info("order_restore_success", "order_id", ord.ID)
	return c.JSON(http.StatusOK, ord)
}
