package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersPlaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "number of orders committed",
		},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "number of domain events acknowledged by the broker",
		},
		[]string{"topic"},
	)
	PublishDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_publish_degraded_total",
			Help: "number of events whose publish retries were exhausted after commit",
		},
		[]string{"topic"},
	)
	EventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "number of events handled successfully",
		},
		[]string{"topic"},
	)
	EventsDuplicate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_duplicate_total",
			Help: "number of redelivered events skipped by the idempotency ledger",
		},
		[]string{"topic"},
	)
	EventsDeadLettered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dead_lettered_total",
			Help: "number of events routed to a dead-letter topic",
		},
		[]string{"topic"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(register)
}

func register() {
	prometheus.MustRegister(
		OrdersPlaced,
		EventsPublished,
		PublishDegraded,
		EventsConsumed,
		EventsDuplicate,
		EventsDeadLettered,
	)
}
