package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/mkrylosov/orderhub/internal/config"
	"github.com/mkrylosov/orderhub/internal/db"
	"github.com/mkrylosov/orderhub/internal/es"
	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/logging"
	"github.com/mkrylosov/orderhub/internal/metrics"
	"github.com/mkrylosov/orderhub/internal/mykafka"
	"github.com/mkrylosov/orderhub/internal/repository"
	"github.com/mkrylosov/orderhub/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LOG_LEVEL)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	if err := mykafka.EnsureTopics(ctx, cfg.Brokers(), events.AllTopics()); err != nil {
		log.Fatalf("kafka topic error: %v", err)
	}
	prod, err := mykafka.NewProducer(cfg.Brokers())
	if err != nil {
		log.Fatalf("kafka producer error: %v", err)
	}
	defer prod.Close()

	esClient, err := es.NewClient(cfg)
	if err != nil {
		log.Fatalf("elasticsearch error: %v", err)
	}

	processed := &repository.ProcessedRepo{DB: gdb}
	notifier := &worker.Notifier{Processed: processed}
	indexer := &worker.Indexer{ES: esClient, Index: cfg.PRODUCT_INDEX}

	rt := mykafka.NewRuntime(mykafka.RuntimeConfig{
		Brokers: cfg.Brokers(),
		GroupID: cfg.KAFKA_GROUP_ID,
	}, processed, prod, logger)

	rt.Subscribe(events.TopicOrderCreated, notifier.HandleOrderCreated)
	rt.Subscribe(events.TopicOrderDeleted, notifier.HandleOrderDeleted)
	rt.Subscribe(events.TopicUserRegistered, notifier.HandleUserRegistered)
	rt.Subscribe(events.TopicPasswordResetRequested, notifier.HandleResetRequested)
	rt.Subscribe(events.TopicPasswordChanged, notifier.HandlePasswordChanged)
	rt.Subscribe(events.TopicProductCreated, indexer.HandleProductUpserted)
	rt.Subscribe(events.TopicProductUpdated, indexer.HandleProductUpserted)
	rt.Subscribe(events.TopicProductDeleted, indexer.HandleProductDeleted)

	logger.Info("worker started", "group", cfg.KAFKA_GROUP_ID)
	if err := rt.Run(logging.IntoContext(ctx, logger)); err != nil {
		log.Fatalf("worker error: %v", err)
	}
	logger.Info("worker stopped")
}
