package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_opened_total",
		Help: "Total number of checkout sessions opened at the gateway",
	})

	CheckoutsCapturedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_captured_total",
		Help: "Total number of successful payment captures",
	})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of failed checkout operations",
	}, []string{"phase", "reason"})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of order aggregates created",
	})

	ReconcileWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_reconcile_warnings_total",
		Help: "Captures that succeeded but could not be reconciled locally",
	}, []string{"reason"})

	ReconcileRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_reconcile_retries_total",
		Help: "Reconciliation worker order creation retries",
	}, []string{"outcome"})

	OrdersShippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_shipped_total",
		Help: "Total number of orders moved to SHIPPED",
	})

	OrdersDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_delivered_total",
		Help: "Total number of orders moved to DELIVERED",
	})

	AdminUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_order_updates_total",
		Help: "Total number of admin order mutations",
	}, []string{"outcome"})

	GatewayCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	GatewayCallsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_calls_failed_total",
		Help: "Total number of failed payment gateway calls",
	}, []string{"operation"})

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
