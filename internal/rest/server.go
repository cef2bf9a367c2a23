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
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-passkey-idp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey-idp/pkg/ceremony"
	"github.com/jeremyhahn/go-passkey-idp/pkg/health"
	"github.com/jeremyhahn/go-passkey-idp/pkg/keys"
	"github.com/jeremyhahn/go-passkey-idp/pkg/metrics"
	"github.com/jeremyhahn/go-passkey-idp/pkg/oidc"
	"github.com/jeremyhahn/go-passkey-idp/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey-idp/pkg/session"
)

// Server is the identity provider's HTTP server.
type Server struct {
	server   *http.Server
	handlers *HandlerContext
	addr     string
	certFile string
	keyFile  string
	limiter  *ratelimit.Limiter
	logger   logger.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Addr is the host:port to listen on (default: ":8080")
	Addr string

	// Ceremony drives WebAuthn registration and authentication (required)
	Ceremony *ceremony.Service

	// Engine implements the OIDC authorization-code flow (required)
	Engine *oidc.Engine

	// Discovery serves the provider metadata document (required)
	Discovery *oidc.Discovery

	// Keys serves the JWKS document (required)
	Keys *keys.Service

	// Sessions validates and revokes browser sessions (required)
	Sessions *session.Manager

	// Limiter rate limits by client IP (optional, disabled when nil)
	Limiter *ratelimit.Limiter

	// Logger is the logging adapter (optional, uses slog if not provided)
	Logger logger.Logger

	// HealthChecker backs the health endpoints (optional)
	HealthChecker *health.Checker

	// CookieSecure marks the session cookie Secure. Should be true
	// whenever the issuer is served over HTTPS.
	CookieSecure bool

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set
	TLSCertFile string
	TLSKeyFile  string
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Ceremony == nil {
		return nil, fmt.Errorf("ceremony service is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("oidc engine is required")
	}
	if cfg.Discovery == nil {
		return nil, fmt.Errorf("discovery is required")
	}
	if cfg.Keys == nil {
		return nil, fmt.Errorf("key service is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	// Set defaults
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{Level: logger.LevelInfo})
	}

	handlers := NewHandlerContext(&HandlerParams{
		Ceremony:      cfg.Ceremony,
		Engine:        cfg.Engine,
		Discovery:     cfg.Discovery,
		Keys:          cfg.Keys,
		Sessions:      cfg.Sessions,
		HealthChecker: cfg.HealthChecker,
		CookieSecure:  cfg.CookieSecure,
		Logger:        log,
	})

	server := &Server{
		handlers: handlers,
		addr:     cfg.Addr,
		certFile: cfg.TLSCertFile,
		keyFile:  cfg.TLSKeyFile,
		limiter:  cfg.Limiter,
		logger:   log,
	}

	router := server.setupRouter()

	server.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware()) // Add correlation ID before logging
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	if s.limiter != nil {
		r.Use(ratelimit.Middleware(s.limiter))
	}

	// Health probes (no rate limit concerns, cheap by design)
	r.Get("/health", s.handlers.HealthHandler)
	r.Head("/health", s.handlers.HealthHandler)
	r.Get("/health/live", s.handlers.LivenessHandler)
	r.Get("/health/ready", s.handlers.ReadinessHandler)
	r.Get("/health/startup", s.handlers.StartupHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// OIDC discovery surface
	r.Get("/.well-known/openid-configuration", s.handlers.DiscoveryHandler)
	r.Get("/.well-known/jwks.json", s.handlers.JWKSHandler)

	// OIDC protocol endpoints
	r.Get("/authorize", s.handlers.AuthorizeHandler)
	r.Post("/token", s.handlers.TokenHandler)
	r.Get("/userinfo", s.handlers.UserInfoHandler)
	r.Post("/userinfo", s.handlers.UserInfoHandler)

	// WebAuthn ceremony endpoints
	r.Route("/auth", func(r chi.Router) {
		r.Use(CORSMiddleware)
		r.Post("/register/options", s.handlers.RegisterOptionsHandler)
		r.Post("/register/verify", s.handlers.RegisterVerifyHandler)
		r.Post("/login/options", s.handlers.LoginOptionsHandler)
		r.Post("/login/verify", s.handlers.LoginVerifyHandler)
		r.Post("/logout", s.handlers.LogoutHandler)
		r.Get("/session", s.handlers.SessionHandler)
	})

	return r
}

// Handler returns the configured router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the REST API server.
func (s *Server) Start() error {
	if s.certFile != "" && s.keyFile != "" {
		s.logger.Info("Starting HTTPS server", logger.String("addr", s.addr))
		if err := s.server.ListenAndServeTLS(s.certFile, s.keyFile); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("Starting HTTP server", logger.String("addr", s.addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logger.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}
