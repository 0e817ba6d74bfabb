package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Total number of checkout flows started",
	})

	CheckoutFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failures_total",
		Help: "Total number of checkout flows that did not end in payment",
	}, []string{"reason"})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders persisted in payment_pending",
	})

	OrderIDCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_id_collisions_total",
		Help: "Total number of order id collisions retried",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of order status transitions applied",
	}, []string{"to"})

	PaymentOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Outcomes reported by the hosted payment UI",
	}, []string{"outcome"})

	PaymentUpdateFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_update_failures_total",
		Help: "Client-side payment updates that failed or lost the race",
	})

	PaymentWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_wait_duration_seconds",
		Help:    "Time between opening the payment UI and its resolution",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "status"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Payment webhook deliveries by event and result",
	}, []string{"event", "result"})

	CartOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Cart mutations by operation",
	}, []string{"op"})

	LedgerLogsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_logs_created_total",
		Help: "Ledger logs filed by type",
	}, []string{"type"})

	LedgerDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_decisions_total",
		Help: "Ledger log decisions by type and resulting status",
	}, []string{"type", "status"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Domain events handled by the worker",
	}, []string{"event_type", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
