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

package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter implements a token bucket rate limiter with per-client tracking.
// It uses the golang.org/x/time/rate package for efficient, thread-safe rate limiting.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	enabled  bool

	// Cleanup settings
	cleanupInterval time.Duration
	maxIdle         time.Duration
	lastSeen        map[string]time.Time
	stopCleanup     chan struct{}
}

// Config holds rate limiter configuration.
type Config struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool

	// RequestsPerMinute sets the sustained rate limit.
	RequestsPerMinute int

	// Burst allows short bursts above the sustained rate.
	// If not set, defaults to RequestsPerMinute.
	Burst int

	// CleanupInterval controls how often to remove idle clients.
	// Defaults to 10 minutes.
	CleanupInterval time.Duration

	// MaxIdle is how long a client can be idle before cleanup.
	// Defaults to 30 minutes.
	MaxIdle time.Duration
}

// New creates a new rate limiter with the given configuration.
func New(config *Config) *Limiter {
	if config == nil {
		config = &Config{Enabled: false}
	}

	burst := config.Burst
	if burst == 0 {
		burst = config.RequestsPerMinute
	}

	cleanupInterval := config.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 10 * time.Minute
	}

	maxIdle := config.MaxIdle
	if maxIdle == 0 {
		maxIdle = 30 * time.Minute
	}

	// Convert requests per minute to requests per second
	ratePerSecond := rate.Limit(float64(config.RequestsPerMinute) / 60.0)

	l := &Limiter{
		limiters:        make(map[string]*rate.Limiter),
		lastSeen:        make(map[string]time.Time),
		rate:            ratePerSecond,
		burst:           burst,
		enabled:         config.Enabled,
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
		stopCleanup:     make(chan struct{}),
	}

	if config.Enabled {
		go l.cleanupWorker()
	}

	return l
}

// getLimiter returns the rate limiter for a given client identifier.
// Creates a new limiter if one doesn't exist.
func (l *Limiter) getLimiter(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[clientID]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[clientID] = limiter
	}

	l.lastSeen[clientID] = time.Now()
	return limiter
}

// Allow checks if a request from the given client should be allowed.
// Returns true if the request is within rate limits.
func (l *Limiter) Allow(clientID string) bool {
	if !l.enabled {
		return true
	}

	limiter := l.getLimiter(clientID)
	return limiter.Allow()
}

// Wait blocks until the rate limit allows the request.
// Returns nil on success or an error if the context is cancelled.
func (l *Limiter) Wait(ctx context.Context, clientID string) error {
	if !l.enabled {
		return nil
	}

	limiter := l.getLimiter(clientID)
	return limiter.Wait(ctx)
}

// cleanupWorker periodically removes idle clients from memory.
func (l *Limiter) cleanupWorker() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup removes clients that haven't made requests recently.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for clientID, lastSeen := range l.lastSeen {
		if now.Sub(lastSeen) > l.maxIdle {
			delete(l.limiters, clientID)
			delete(l.lastSeen, clientID)
		}
	}
}

// Stop stops the cleanup worker.
func (l *Limiter) Stop() {
	close(l.stopCleanup)
}

// Stats returns current rate limiter statistics.
func (l *Limiter) Stats() map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return map[string]interface{}{
		"enabled":        l.enabled,
		"active_clients": len(l.limiters),
		"rate_per_min":   float64(l.rate) * 60,
		"burst":          l.burst,
	}
}

// Middleware returns an HTTP middleware that enforces rate limiting.
// It uses the client's IP address as the identifier.
func Middleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)

			if !limiter.Allow(clientIP) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP from the request.
// Checks X-Forwarded-For and X-Real-IP headers for proxied requests.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (may contain multiple IPs)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP (original client)
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	return r.RemoteAddr
}

// IsEnabled returns whether rate limiting is enabled.
func (l *Limiter) IsEnabled() bool {
	return l.enabled
}
