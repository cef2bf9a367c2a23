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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg *Config) *Limiter {
	t.Helper()
	limiter := New(cfg)
	require.NotNil(t, limiter)
	t.Cleanup(limiter.Stop)
	return limiter
}

func TestBurstThenDeny(t *testing.T) {
	limiter := newTestLimiter(t, &Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             5,
	})

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("client"), "request %d within burst", i+1)
	}
	assert.False(t, limiter.Allow("client"), "burst exhausted")
}

func TestRefillAfterWait(t *testing.T) {
	// 600/min refills one token every 100ms.
	limiter := newTestLimiter(t, &Config{
		Enabled:           true,
		RequestsPerMinute: 600,
		Burst:             1,
	})

	require.True(t, limiter.Allow("client"))
	require.False(t, limiter.Allow("client"))

	time.Sleep(150 * time.Millisecond)
	assert.True(t, limiter.Allow("client"))
}

func TestDisabledAllowsEverything(t *testing.T) {
	limiter := newTestLimiter(t, &Config{
		Enabled:           false,
		RequestsPerMinute: 1,
	})

	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow("client"))
	}
	assert.False(t, limiter.IsEnabled())
}

func TestClientsLimitedIndependently(t *testing.T) {
	limiter := newTestLimiter(t, &Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             1,
	})

	require.True(t, limiter.Allow("first"))
	require.False(t, limiter.Allow("first"))

	// A different client has its own bucket.
	assert.True(t, limiter.Allow("second"))
}

func TestIdleBucketsEvicted(t *testing.T) {
	limiter := newTestLimiter(t, &Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		CleanupInterval:   50 * time.Millisecond,
		MaxIdle:           100 * time.Millisecond,
	})

	limiter.Allow("client")
	require.Equal(t, 1, limiter.Stats()["active_clients"])

	assert.Eventually(t, func() bool {
		return limiter.Stats()["active_clients"] == 0
	}, time.Second, 25*time.Millisecond)
}

func TestMiddlewareReturns429(t *testing.T) {
	limiter := newTestLimiter(t, &Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             2,
	})

	handler := Middleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/token", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "first entry of X-Forwarded-For",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"},
			remoteAddr: "192.168.1.1:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.7"},
			remoteAddr: "192.168.1.1:1234",
			want:       "203.0.113.7",
		},
		{
			name:       "RemoteAddr fallback",
			remoteAddr: "192.168.1.1:1234",
			want:       "192.168.1.1:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestStats(t *testing.T) {
	limiter := newTestLimiter(t, &Config{
		Enabled:           true,
		RequestsPerMinute: 120,
		Burst:             10,
	})

	limiter.Allow("client-1")
	limiter.Allow("client-2")

	stats := limiter.Stats()
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, 2, stats["active_clients"])
	assert.Equal(t, 120.0, stats["rate_per_min"])
	assert.Equal(t, 10, stats["burst"])
}
