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
	"time"

	"github.com/jeremyhahn/go-passkey-idp/pkg/adapters/logger"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// newResponseWriter creates a new responseWriter.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// LoggingMiddleware logs HTTP requests using the configured logger.
func (s *Server) LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			ctx := r.Context()

			if slogAdapter, ok := s.logger.(*logger.SlogAdapter); ok {
				slogAdapter.DebugContext(ctx, "Request started",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path))
			} else {
				s.logger.Debug("Request started",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path))
			}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			if slogAdapter, ok := s.logger.(*logger.SlogAdapter); ok {
				slogAdapter.InfoContext(ctx, "Request completed",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.Int("status", wrapped.statusCode),
					logger.Duration("duration", duration))
			} else {
				s.logger.Info("Request completed",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.Int("status", wrapped.statusCode),
					logger.Duration("duration", duration))
			}
		})
	}
}

// CORSMiddleware adds CORS headers for the ceremony endpoints. WebAuthn
// responses carry no secrets the browser does not already hold; the
// session cookie itself stays SameSite protected.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func (s *Server) RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					s.logger.Error("Panic recovered",
						logger.String("method", r.Method),
						logger.String("path", r.URL.Path),
						logger.Any("error", err))
					writeAuthError(w, "internal server error", CodeInternalError, http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
