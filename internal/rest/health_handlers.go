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

package rest

import (
	"net/http"

	"github.com/jeremyhahn/go-passkey-idp/pkg/health"
)

// HealthCheckResponse represents the response for health check endpoints.
type HealthCheckResponse struct {
	// Status is the overall health status
	Status health.Status `json:"status"`
	// Message provides additional context
	Message string `json:"message,omitempty"`
	// Checks contains individual check results (for readiness)
	Checks []health.CheckResult `json:"checks,omitempty"`
}

// HealthHandler handles GET /health requests. It aggregates the
// readiness checks into a single status.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.healthChecker == nil {
		writeJSON(w, HealthCheckResponse{Status: health.StatusHealthy}, http.StatusOK)
		return
	}

	results := h.healthChecker.Ready(r.Context())
	status := health.AggregateStatus(results)

	statusCode := http.StatusOK
	if status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, HealthCheckResponse{Status: status}, statusCode)
}

// LivenessHandler handles GET /health/live requests.
//
// Liveness probes determine if the service is alive and should be
// restarted. This endpoint should only fail if the service is in an
// unrecoverable state.
func (h *HandlerContext) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if h.healthChecker == nil {
		writeJSON(w, HealthCheckResponse{
			Status:  health.StatusHealthy,
			Message: "Service is alive",
		}, http.StatusOK)
		return
	}

	result := h.healthChecker.Live(r.Context())
	writeJSON(w, HealthCheckResponse{
		Status:  result.Status,
		Message: result.Message,
	}, http.StatusOK)
}

// ReadinessHandler handles GET /health/ready requests.
//
// Readiness fails while dependencies are unavailable, most importantly
// when the signing key cannot be reached in storage.
func (h *HandlerContext) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.healthChecker == nil {
		writeJSON(w, HealthCheckResponse{
			Status:  health.StatusHealthy,
			Message: "Service is ready",
		}, http.StatusOK)
		return
	}

	results := h.healthChecker.Ready(r.Context())
	overallStatus := health.AggregateStatus(results)

	resp := HealthCheckResponse{
		Status: overallStatus,
		Checks: results,
	}

	switch overallStatus {
	case health.StatusHealthy:
		resp.Message = "All checks passed"
	case health.StatusDegraded:
		resp.Message = "Service is degraded"
	case health.StatusUnhealthy:
		resp.Message = "One or more checks failed"
	}

	statusCode := http.StatusOK
	if overallStatus == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, resp, statusCode)
}

// StartupHandler handles GET /health/startup requests.
//
// The startup check fails until initialization, including signing key
// generation, has completed.
func (h *HandlerContext) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if h.healthChecker == nil {
		writeJSON(w, HealthCheckResponse{
			Status:  health.StatusHealthy,
			Message: "Service has started",
		}, http.StatusOK)
		return
	}

	result := h.healthChecker.Startup(r.Context())
	resp := HealthCheckResponse{
		Status:  result.Status,
		Message: result.Message,
	}

	statusCode := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, resp, statusCode)
}
