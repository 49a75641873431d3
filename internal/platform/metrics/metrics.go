// Package metrics owns the process Prometheus registry and the collectors the
// transport, pipeline and batch layers report into
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated registry served at /metrics
	Registry = prometheus.NewRegistry()

	// UpstreamCalls counts classified upstream responses by service and outcome
	UpstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "detention_upstream_calls_total", Help: "Upstream calls by service and classified outcome."},
		[]string{"service", "outcome"},
	)
	// UpstreamLatency records upstream latency in seconds
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "detention_upstream_latency_seconds", Help: "Upstream call latency in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"service"},
	)
	// Retries counts retry attempts by service and error kind
	Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "detention_retries_total", Help: "Retry attempts by service and error kind."},
		[]string{"service", "kind"},
	)
	// BreakerState is 0 closed, 1 half-open, 2 open
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "detention_breaker_state", Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)."},
		[]string{"service"},
	)
	// Orders counts terminal order outcomes
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "detention_orders_total", Help: "Processed orders by terminal outcome."},
		[]string{"outcome"},
	)
	// Approvals counts approval decisions by kind
	Approvals = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "detention_approvals_total", Help: "Approval decisions by kind."},
		[]string{"decision"},
	)
	// BatchRemaining is the number of orders left in the active run
	BatchRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "detention_batch_remaining", Help: "Orders remaining in the active batch run."},
	)
	// StoreQueries records statement latency by backend and outcome
	StoreQueries = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "detention_store_query_seconds", Help: "Store statement latency in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"backend", "outcome"},
	)
	// HTTPRequests records API latency by method, route pattern and status
	HTTPRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "detention_http_request_seconds", Help: "API request latency in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route", "status"},
	)
	// TokenRefreshes counts session token acquisitions by result
	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "detention_token_refreshes_total", Help: "Session token acquisitions by result."},
		[]string{"result"},
	)
)

var regOnce sync.Once

// Register adds all collectors plus Go and process collectors to Registry. Safe to call repeatedly
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(
			UpstreamCalls, UpstreamLatency, Retries, BreakerState,
			Orders, Approvals, BatchRemaining, TokenRefreshes, StoreQueries, HTTPRequests,
		)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves Registry in the Prometheus exposition format
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
