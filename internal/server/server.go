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

// Package server wires the identity provider together: storage,
// repositories, the key service, the ceremony service, the OIDC engine
// and the REST surface, all built from a single configuration.
package server

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-passkey-idp/internal/config"
	"github.com/jeremyhahn/go-passkey-idp/internal/rest"
	"github.com/jeremyhahn/go-passkey-idp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey-idp/pkg/ceremony"
	"github.com/jeremyhahn/go-passkey-idp/pkg/health"
	"github.com/jeremyhahn/go-passkey-idp/pkg/identity"
	"github.com/jeremyhahn/go-passkey-idp/pkg/keys"
	"github.com/jeremyhahn/go-passkey-idp/pkg/metrics"
	"github.com/jeremyhahn/go-passkey-idp/pkg/oidc"
	"github.com/jeremyhahn/go-passkey-idp/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey-idp/pkg/session"
	"github.com/jeremyhahn/go-passkey-idp/pkg/storage"
)

// Server is the assembled identity provider.
type Server struct {
	config  *config.Config
	logger  logger.Logger
	backend storage.Backend

	users    identity.UserRepository
	creds    identity.CredentialRepository
	sessions *session.Manager
	keys     *keys.Service
	ceremony *ceremony.Service
	engine   *oidc.Engine
	clients  *oidc.MemoryRegistry

	restServer    *rest.Server
	healthChecker *health.Checker
	limiter       *ratelimit.Limiter
	collector     *metrics.ResourceCollector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Server from the given configuration. The signing key
// pair is generated on first start and loaded on every start after
// that.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	log := logger.NewSlogAdapter(&logger.SlogConfig{
		Level:  logger.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	users := identity.NewStorageUserRepository(backend)
	creds := identity.NewStorageCredentialRepository(backend)
	sessions := session.NewManagerWithTTL(backend, cfg.Session.TTL)

	keySvc, err := keys.NewService(keys.ServiceParams{
		Backend:  backend,
		Issuer:   cfg.Issuer,
		TokenTTL: cfg.OIDC.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key service: %w", err)
	}
	if err := keySvc.EnsureKeyPair(); err != nil {
		return nil, fmt.Errorf("failed to ensure signing key pair: %w", err)
	}
	kid, err := keySvc.KID()
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key id: %w", err)
	}
	log.Info("Signing key ready", logger.String("kid", kid))

	webauthnCfg := cfg.WebAuthn
	ceremonySvc, err := ceremony.NewService(ceremony.ServiceParams{
		Config:      &webauthnCfg,
		Users:       users,
		Credentials: creds,
		Challenges:  backend,
		Sessions:    sessions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ceremony service: %w", err)
	}

	clients, err := loadClients(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := oidc.NewEngine(oidc.EngineParams{
		Clients:   clients,
		Users:     users,
		Sessions:  sessions,
		Keys:      keySvc,
		Codes:     backend,
		Issuer:    cfg.Issuer,
		LoginPath: cfg.OIDC.LoginPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oidc engine: %w", err)
	}

	checker := health.NewChecker()
	checker.RegisterCheck("storage", func(ctx context.Context) health.CheckResult {
		if _, err := backend.Exists("signing:keypair"); err != nil {
			return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
		}
		return health.CheckResult{Status: health.StatusHealthy, Message: "backend reachable"}
	})
	checker.RegisterCheck("signing-key", func(ctx context.Context) health.CheckResult {
		if _, err := keySvc.KID(); err != nil {
			return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
		}
		return health.CheckResult{Status: health.StatusHealthy, Message: "key pair loaded"}
	})

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
			Burst:             cfg.RateLimit.Burst,
		})
	}

	if !cfg.Metrics.Enabled {
		metrics.Disable()
	}

	restServer, err := rest.NewServer(&rest.Config{
		Addr:          cfg.ListenAddr(),
		Ceremony:      ceremonySvc,
		Engine:        engine,
		Discovery:     oidc.NewDiscovery(cfg.Issuer),
		Keys:          keySvc,
		Sessions:      sessions,
		Limiter:       limiter,
		Logger:        log,
		HealthChecker: checker,
		CookieSecure:  strings.HasPrefix(cfg.Issuer, "https://"),
		TLSCertFile:   cfg.TLS.CertFile,
		TLSKeyFile:    cfg.TLS.KeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create REST server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:        cfg,
		logger:        log,
		backend:       backend,
		users:         users,
		creds:         creds,
		sessions:      sessions,
		keys:          keySvc,
		ceremony:      ceremonySvc,
		engine:        engine,
		clients:       clients,
		restServer:    restServer,
		healthChecker: checker,
		limiter:       limiter,
		collector:     metrics.NewResourceCollector(0),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// newBackend builds the storage backend named in the configuration.
func newBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemory(), nil
	case "file":
		backend, err := storage.NewFile(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file backend: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// loadClients reads the OIDC client registrations, or starts with an
// empty registry when no clients file is configured.
func loadClients(cfg *config.Config) (*oidc.MemoryRegistry, error) {
	if cfg.OIDC.ClientsFile == "" {
		return oidc.NewMemoryRegistry(), nil
	}
	clients, err := oidc.LoadClients(cfg.OIDC.ClientsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients file: %w", err)
	}
	return clients, nil
}

// Start runs the REST server and the resource collector. It blocks
// until the server exits.
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.collector.Start(s.ctx)
	}()

	s.healthChecker.MarkStarted()
	return s.restServer.Start()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	err := s.restServer.Stop(ctx)

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if closeErr := s.backend.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	s.wg.Wait()
	return err
}

// RESTServer returns the REST server, primarily for tests.
func (s *Server) RESTServer() *rest.Server {
	return s.restServer
}

// HealthChecker returns the health checker.
func (s *Server) HealthChecker() *health.Checker {
	return s.healthChecker
}
