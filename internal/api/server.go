package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/org/adops/internal/adplatform"
	"github.com/org/adops/internal/audit"
	"github.com/org/adops/internal/storage"
	"github.com/org/adops/internal/vault"
	"github.com/org/adops/pkg/models"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr   string
	TLSCertFile  string
	TLSKeyFile   string
	ServiceToken string
}

// AuditLogger is the interface the server needs from an audit logger.
// Audit is a sibling concern: handlers never depend on it succeeding.
type AuditLogger interface {
	LogRequest(ctx context.Context, entry *models.AuditEntry)
	Query(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEntry, error)
}

// Server is the credential API server.
type Server struct {
	store    storage.CredentialStore
	vault    *vault.Vault
	platform adplatform.Client
	auditor  AuditLogger
	clock    clockwork.Clock
	cfg      Config
	httpSrv  *http.Server
}

// NewServer creates a fully wired Server. The clock must be the same one
// the vault judges expiry with, so relative expiries resolve consistently.
func NewServer(store storage.CredentialStore, vlt *vault.Vault, platform adplatform.Client, clock clockwork.Clock, cfg Config) *Server {
	return &Server{
		store:    store,
		vault:    vlt,
		platform: platform,
		auditor:  audit.NewLogger(store),
		clock:    clock,
		cfg:      cfg,
	}
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(auditMiddleware(s.auditor))

	// Prometheus metrics (unauthenticated)
	r.Handle("/metrics", MetricsHandler())

	// Public routes
	r.Get("/v1/sys/health", s.HealthHandler)

	// Service-token authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(serviceAuthMiddleware(s.cfg.ServiceToken))

		r.Get("/v1/sys/audit-log", s.AuditLogHandler)

		r.Route("/v1/owners/{ownerID}", func(r chi.Router) {
			r.Get("/accounts", s.AccountsHandler)
			r.Delete("/credentials", s.PurgeOwnerHandler)

			r.Route("/accounts/{accountID}", func(r chi.Router) {
				r.Put("/credential", s.StoreCredentialHandler)
				r.Get("/credential/status", s.CredentialStatusHandler)
				r.Delete("/credential", s.DisconnectHandler)
				r.Get("/campaigns", s.CampaignsHandler)
			})
		})
	})

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		tlsCfg := &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		s.httpSrv.TLSConfig = tlsCfg
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
