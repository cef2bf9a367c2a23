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

// Package health implements liveness, readiness and startup probes with
// Kubernetes semantics. Readiness aggregates named component checks such
// as the storage backend and the token signing key.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the health state of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult is the outcome of a single probe or component check.
type CheckResult struct {
	Name    string        `json:"name"`
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// CheckFunc probes one component. Implementations must return quickly;
// the Name and Latency fields are filled in by the Checker when unset.
type CheckFunc func(ctx context.Context) CheckResult

// Checker runs registered component checks and tracks startup state.
//
// Liveness answers "is the process alive", readiness answers "can it
// serve traffic" and startup answers "has initialization finished".
// Liveness never fails while the process runs; a failing readiness
// check is expected to be temporary.
type Checker struct {
	mu      sync.RWMutex
	started bool
	checks  map[string]CheckFunc
}

// NewChecker creates an empty Checker. The startup probe fails until
// MarkStarted is called.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]CheckFunc)}
}

// RegisterCheck adds or replaces the readiness check with the given name.
// Nil checks are ignored.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	if check == nil {
		return
	}
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// UnregisterCheck removes the readiness check with the given name.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	delete(c.checks, name)
	c.mu.Unlock()
}

// MarkStarted records that initialization has completed. Call it once
// the signing key exists and the HTTP listener is about to accept.
func (c *Checker) MarkStarted() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
}

// Live reports liveness. It succeeds whenever the process is running.
func (c *Checker) Live(ctx context.Context) CheckResult {
	return CheckResult{
		Name:    "liveness",
		Status:  StatusHealthy,
		Message: "Service is alive",
	}
}

// Ready runs every registered check and returns the results sorted by
// name. With no checks registered it reports a single healthy result so
// a bare Checker never blocks traffic.
func (c *Checker) Ready(ctx context.Context) []CheckResult {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make([]CheckFunc, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		checks = append(checks, c.checks[name])
	}
	c.mu.RUnlock()

	if len(names) == 0 {
		return []CheckResult{{
			Name:    "default",
			Status:  StatusHealthy,
			Message: "No readiness checks configured",
		}}
	}

	results := make([]CheckResult, 0, len(names))
	for i, check := range checks {
		start := time.Now()
		result := check(ctx)
		if result.Latency == 0 {
			result.Latency = time.Since(start)
		}
		if result.Name == "" {
			result.Name = names[i]
		}
		results = append(results, result)
	}
	return results
}

// Startup reports whether initialization has completed. It fails until
// MarkStarted is called.
func (c *Checker) Startup(ctx context.Context) CheckResult {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()

	if !started {
		return CheckResult{
			Name:    "startup",
			Status:  StatusUnhealthy,
			Message: "Service initialization not complete",
		}
	}
	return CheckResult{
		Name:    "startup",
		Status:  StatusHealthy,
		Message: "Service fully initialized",
	}
}

// IsHealthy reports whether every readiness check passes.
func (c *Checker) IsHealthy(ctx context.Context) bool {
	for _, result := range c.Ready(ctx) {
		if result.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// IsStarted reports whether MarkStarted has been called.
func (c *Checker) IsStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// AggregateStatus folds check results into one overall status. Any
// unhealthy result wins, then degraded, then healthy.
func AggregateStatus(results []CheckResult) Status {
	status := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Describe formats a result for log output.
func Describe(r CheckResult) string {
	if r.Error != "" {
		return fmt.Sprintf("%s: %s (%s)", r.Name, r.Status, r.Error)
	}
	return fmt.Sprintf("%s: %s", r.Name, r.Status)
}
