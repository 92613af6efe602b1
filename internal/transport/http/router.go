package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkrylosov/orderhub/internal/handlers"
	"github.com/mkrylosov/orderhub/internal/middleware/auth"
)

type Deps struct {
	AuthHandler    *handlers.AuthHandler
	OrderHandler   *handlers.OrderHandler
	ProductHandler *handlers.ProductHandler
	SearchHandler  *handlers.SearchHandler
	Auth           *auth.Middleware
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/refresh", d.AuthHandler.Refresh)
	v1.POST("/logout", d.AuthHandler.Logout)
	v1.POST("/forgot-password", d.AuthHandler.ForgotPassword)
	v1.POST("/reset-password", d.AuthHandler.ResetPassword)
	v1.GET("/search", d.SearchHandler.Handler)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.List)
	products.GET("/:id", d.ProductHandler.Get)

	admin := v1.Group("/admin", d.Auth.Require("admin"))
	admin.POST("/products", d.ProductHandler.Create)
	admin.PATCH("/products/:id", d.ProductHandler.Update)
	admin.DELETE("/products/:id", d.ProductHandler.Delete)

	orders := v1.Group("/orders", d.Auth.Require(""))
	orders.POST("", d.OrderHandler.Create)
	orders.GET("", d.OrderHandler.List)
	orders.GET("/trashed", d.OrderHandler.Trashed)
	orders.GET("/:id", d.OrderHandler.Get)
	orders.DELETE("/:id", d.OrderHandler.Cancel)
	orders.POST("/:id/restore", d.OrderHandler.Restore)
}
