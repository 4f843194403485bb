package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/legacyvault/internal/audit"
	"github.com/org/legacyvault/internal/auth"
	"github.com/org/legacyvault/internal/backup"
	"github.com/org/legacyvault/internal/core"
	"github.com/org/legacyvault/internal/crypto"
	"github.com/org/legacyvault/internal/mail"
	"github.com/org/legacyvault/internal/release"
	"github.com/org/legacyvault/internal/secret"
	"github.com/org/legacyvault/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version is reported by the status endpoints.
const Version = "1.0.0"

// Config holds server configuration.
type Config struct {
	ListenAddr    string
	TLSCertFile   string
	TLSKeyFile    string
	KDFIterations int
	SessionTTL    time.Duration
}

// AuditLogger is the interface the server needs from an audit logger.
type AuditLogger interface {
	LogRequest(ctx context.Context, entry *audit.Entry)
	Recent(limit int) []audit.Entry
}

// Server is the API server.
type Server struct {
	store    storage.Store
	session  *core.Session
	tokens   *auth.TokenService
	records  *secret.RecordEngine
	trustees *release.TrusteeService
	release  *release.Controller
	backups  *backup.Service
	auditor  AuditLogger
	cfg      Config
	httpSrv  *http.Server
	now      func() time.Time

	passwordLimit *rateLimiter
}

// Password endpoints allow a short burst, then one attempt every two seconds per IP.
const (
	passwordAttemptsPerSec = 0.5
	passwordAttemptBurst   = 10
)

// NewServer creates a fully wired Server. archive may be nil.
func NewServer(store storage.Store, mailer mail.Mailer, archive backup.Archiver, logger zerolog.Logger, cfg Config) *Server {
	if cfg.KDFIterations <= 0 {
		cfg.KDFIterations = crypto.DefaultIterations
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	session := core.NewSession()
	return &Server{
		store:    store,
		session:  session,
		tokens:   auth.NewTokenService(cfg.SessionTTL),
		records:  secret.NewRecordEngine(store, session),
		trustees: release.NewTrusteeService(store),
		release:  release.NewController(store, mailer, logger.With().Str("component", "release").Logger()),
		backups:  backup.NewService(store, mailer, archive, logger.With().Str("component", "backup").Logger()),
		auditor:  audit.NewLogger(logger, 500),
		cfg:      cfg,
		now:      time.Now,

		passwordLimit: newRateLimiter(passwordAttemptsPerSec, passwordAttemptBurst),
	}
}

// Release exposes the release controller (for the activity refresh loop).
func (s *Server) Release() *release.Controller {
	return s.release
}

// Active reports whether an unlocked session is in use. An expired session
// is locked here.
func (s *Server) Active() bool {
	if s.tokens.Expired() {
		log.Info().Msg("session expired, locking")
		s.lock()
		return false
	}
	return !s.session.IsLocked()
}

func (s *Server) lock() {
	s.session.Lock()
	s.tokens.Revoke()
	sessionUnlocked.Set(0)
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(newRateLimiter(100, 200).middleware)
	r.Use(auditMiddleware(s.auditor, s.tokens))

	r.Handle("/metrics", MetricsHandler())

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/v1/sys/health", s.HealthHandler)
		r.Get("/v1/sys/status", s.StatusHandler)
		r.With(s.passwordLimit.middleware).Post("/v1/sys/init", s.InitHandler)
		r.With(s.passwordLimit.middleware).Post("/v1/sys/unlock", s.UnlockHandler)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.tokens, s.session))

		r.Put("/v1/sys/lock", s.LockHandler)
		r.Get("/v1/sys/audit-log", s.AuditLogHandler)

		r.Get("/v1/records", s.RecordListHandler)
		r.Post("/v1/records", s.RecordCreateHandler)
		r.Get("/v1/records/{id}", s.RecordGetHandler)
		r.Put("/v1/records/{id}", s.RecordUpdateHandler)
		r.Delete("/v1/records/{id}", s.RecordDeleteHandler)

		r.Get("/v1/trustees", s.TrusteeListHandler)
		r.Post("/v1/trustees", s.TrusteeCreateHandler)
		r.Put("/v1/trustees/{id}", s.TrusteeUpdateHandler)
		r.Delete("/v1/trustees/{id}", s.TrusteeDeleteHandler)

		r.Get("/v1/release/conditions", s.ConditionsGetHandler)
		r.Put("/v1/release/conditions", s.ConditionsUpdateHandler)
		r.Post("/v1/release/activity", s.ActivityHandler)
		r.Post("/v1/release/now", s.ReleaseNowHandler)
		r.Get("/v1/release/preview", s.PreviewHandler)

		r.Get("/v1/backup", s.BackupExportHandler)
		r.Post("/v1/backup", s.BackupImportHandler)
		r.Post("/v1/backup/email", s.BackupEmailHandler)

		r.Get("/v1/settings/email", s.EmailSettingsGetHandler)
		r.Put("/v1/settings/email", s.EmailSettingsUpdateHandler)
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
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		s.httpSrv.TLSConfig = &tls.Config{
			MinVersion:       tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{tls.CurveP256, tls.X25519},
		}
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown locks the session and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lock()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
