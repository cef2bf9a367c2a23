// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey-idp.
//
// go-passkey-idp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for the identity
// provider: ceremony and token issuance counters, HTTP request metrics,
// and process resource gauges.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all identity provider metrics.
	Namespace = "idp"

	// Label names
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"
	LabelProtocol   = "protocol"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpRegisterBegin  = "register_begin"
	OpRegisterFinish = "register_finish"
	OpLoginBegin     = "login_begin"
	OpLoginFinish    = "login_finish"
	OpAuthorize      = "authorize"
	OpTokenExchange  = "token_exchange"
	OpUserInfo       = "userinfo"

	// Token kinds
	KindIDToken     = "id_token"
	KindAccessToken = "access_token"

	// Protocol identifiers
	ProtocolHTTP = "http"
)

var (
	// OperationsTotal tracks protocol engine operations by type and status.
	// Use RecordOperation to increment this counter with the appropriate labels.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of identity provider operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of protocol operations in seconds.
	// Buckets are sized for signing and verification latencies.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of identity provider operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelOperation},
	)

	// TokensIssuedTotal counts issued tokens by kind (id_token, access_token).
	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tokens_issued_total",
			Help:      "Total number of tokens issued by kind",
		},
		[]string{"kind"},
	)

	// HTTPRequestsTotal tracks the total number of HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// ActiveConnections tracks the number of active connections by protocol.
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of active connections by protocol",
		},
		[]string{LabelProtocol},
	)

	// Goroutines tracks the current number of goroutines.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	// Updated periodically by the resource collector.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// MemorySysBytes tracks the total bytes of memory obtained from the OS.
	// Updated periodically by the resource collector.
	MemorySysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_sys_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordOperation records a protocol engine operation with its duration
// and status.
//
// Example:
//
//	start := time.Now()
//	_, err := engine.Token(ctx, req)
//	status := metrics.StatusSuccess
//	if err != nil {
//	    status = metrics.StatusError
//	}
//	metrics.RecordOperation(metrics.OpTokenExchange, status, time.Since(start).Seconds())
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordTokenIssued counts an issued token of the given kind.
func RecordTokenIssued(kind string) {
	if !enabled.Load() {
		return
	}
	TokensIssuedTotal.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// IncrementActiveConnections increments the active connection count for a protocol.
func IncrementActiveConnections(protocol string) {
	if !enabled.Load() {
		return
	}
	ActiveConnections.WithLabelValues(protocol).Inc()
}

// DecrementActiveConnections decrements the active connection count for a protocol.
func DecrementActiveConnections(protocol string) {
	if !enabled.Load() {
		return
	}
	ActiveConnections.WithLabelValues(protocol).Dec()
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
