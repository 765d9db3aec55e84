// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the custom Prometheus metrics for identityd.
type Metrics struct {
	AuthOperations  *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	StoreReadyState prometheus.Gauge
}

// NewMetrics creates and registers the identityd metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identityd_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identityd_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "identityd_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		StoreReadyState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "identityd_store_ready",
				Help: "1 if the last readiness probe reached the user store, else 0",
			},
		),
	}

	reg.MustRegister(m.AuthOperations, m.HTTPRequests, m.HTTPDuration, m.StoreReadyState)
	return m
}

// RecordAuthOperation implements auth.OperationRecorder.
func (m *Metrics) RecordAuthOperation(operation, outcome string) {
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
