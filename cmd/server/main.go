package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mkrylosov/orderhub/internal/config"
	"github.com/mkrylosov/orderhub/internal/db"
	"github.com/mkrylosov/orderhub/internal/es"
	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/handlers"
	"github.com/mkrylosov/orderhub/internal/logging"
	"github.com/mkrylosov/orderhub/internal/metrics"
	authmw "github.com/mkrylosov/orderhub/internal/middleware/auth"
	"github.com/mkrylosov/orderhub/internal/mykafka"
	"github.com/mkrylosov/orderhub/internal/repository"
	"github.com/mkrylosov/orderhub/internal/service/authz"
	"github.com/mkrylosov/orderhub/internal/service/order"
	"github.com/mkrylosov/orderhub/internal/service/token"
	httpserver "github.com/mkrylosov/orderhub/internal/transport/http"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LOG_LEVEL)
	metrics.Init()

	ctx := context.Background()
	gdb, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	roles := &repository.RoleRepo{DB: gdb}
	for _, name := range []string{"user", "admin"} {
		if _, err := roles.EnsureRole(ctx, name); err != nil {
			log.Fatalf("role seed error: %v", err)
		}
	}

	if err := mykafka.EnsureTopics(ctx, cfg.Brokers(), events.AllTopics()); err != nil {
		log.Fatalf("kafka topic error: %v", err)
	}
	prod, err := mykafka.NewProducer(cfg.Brokers())
	if err != nil {
		log.Fatalf("kafka producer error: %v", err)
	}

	esClient, err := es.NewClient(cfg)
	if err != nil {
		log.Fatalf("elasticsearch error: %v", err)
	}

	users := &repository.UserRepo{DB: gdb}
	tokenSvc := &token.Service{
		Repo:          &repository.TokenRepo{DB: gdb},
		Roles:         roles,
		JWTSecret:     []byte(cfg.JWT_SECRET),
		RefreshSecret: []byte(cfg.REFRESH_SECRET),
	}
	orderSvc := &order.Service{
		Repo:      &repository.OrderRepo{DB: gdb},
		Publisher: prod,
	}
	gate := &authz.Gate{Tokens: tokenSvc, Roles: roles}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), logger)))
			return next(c)
		}
	})

	deps := httpserver.Deps{
		AuthHandler:    &handlers.AuthHandler{Users: users, Roles: roles, Tokens: tokenSvc, Producer: prod},
		OrderHandler:   &handlers.OrderHandler{Orders: orderSvc},
		ProductHandler: &handlers.ProductHandler{Catalog: &repository.CatalogRepo{DB: gdb}, Producer: prod},
		SearchHandler:  handlers.NewSearchHandler(esClient, cfg.PRODUCT_INDEX),
		Auth:           &authmw.Middleware{Gate: gate},
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         cfg.HTTP_ADDR,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server started", "addr", cfg.HTTP_ADDR)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	prod.Close()

	logger.Info("shutdown complete")
}
