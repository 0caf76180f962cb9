package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/castmail/internal/web/castmail"
	"github.com/foxzi/castmail/internal/web/compose"
	"github.com/foxzi/castmail/internal/web/config"
	"github.com/foxzi/castmail/internal/web/handlers"
	"github.com/foxzi/castmail/internal/web/history"
	"github.com/foxzi/castmail/internal/web/metrics"
	"github.com/foxzi/castmail/internal/web/middleware"
	"github.com/foxzi/castmail/internal/web/session"
	"github.com/foxzi/castmail/internal/web/static"
	"github.com/foxzi/castmail/internal/web/views"
)

// login attempts allowed per client IP
const (
	loginPerMinute = 10
	loginPerHour   = 100
)

type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *bolt.DB
	history  *history.Storage
	metrics  *metrics.Metrics
	registry *session.Registry
	limiter  *middleware.RateLimiter
	handlers *handlers.Handlers
	http     *http.Server
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	viewEngine, err := views.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize views: %w", err)
	}

	db, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, err
	}
	hist, err := history.NewStorage(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	m := metrics.New()

	registry, err := session.NewRegistry(session.Config{
		Secret:      cfg.Session.Secret,
		TTL:         cfg.Session.TTL,
		MaxSessions: cfg.Session.MaxSessions,
		Secure:      cfg.Session.CookieSecure,
		Compose:     ComposeOptions(cfg),
	}, GatewayFactory(cfg, m), logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sessions: %w", err)
	}
	m.RegisterSessions(registry.Len)

	pinger, err := castmail.NewClient(cfg.Backend.BaseURL,
		castmail.WithTimeout(cfg.Backend.Timeout),
		castmail.WithObserver(m.ObserveBackend),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize backend client: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		history:  hist,
		metrics:  m,
		registry: registry,
		limiter:  middleware.NewRateLimiter(),
		handlers: handlers.New(cfg, viewEngine, registry, hist, m, pinger, logger),
	}

	s.http = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute, // covers create, every attachment upload and send
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// ComposeOptions maps the compose config section onto workflow limits
func ComposeOptions(cfg *config.Config) compose.Options {
	opts := compose.DefaultOptions()
	opts.MaxAttachmentBytes = cfg.Compose.MaxAttachmentBytes
	opts.MaxAttachments = cfg.Compose.MaxAttachments
	return opts
}

// GatewayFactory builds one backend client per session, each with its own
// cookie jar so backend session and CSRF cookies never leak between users
func GatewayFactory(cfg *config.Config, m *metrics.Metrics) session.GatewayFactory {
	return func() (session.Gateway, error) {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		return castmail.NewClient(cfg.Backend.BaseURL,
			castmail.WithTimeout(cfg.Backend.Timeout),
			castmail.WithJar(jar),
			castmail.WithObserver(m.ObserveBackend),
		)
	}
}

// Handler returns the routing shell
func (s *Server) Handler() http.Handler {
	h := s.handlers
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(s.metrics.HTTPMiddleware)

	r.Get("/health", h.Health)
	r.Handle("/metrics", s.metrics.Handler())
	r.Handle("/static/*", http.StripPrefix("/static/", static.Handler()))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(s.registry, s.logger))

		r.Get("/auth/login", h.LoginPage)
		r.With(middleware.Throttle(s.limiter, loginPerMinute, loginPerHour, s.logger)).Post("/auth/login", h.Login)
		r.Get("/auth/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireLogin(s.cfg.Auth.Enabled()))

			r.Get("/", h.Dashboard)
			r.Get("/contacts", h.ContactsPage)
			r.Post("/contacts", h.ContactsSubmit)
			r.Post("/contacts/upload", h.ContactsUpload)
			r.Get("/compose", h.ComposePage)
			r.Post("/compose", h.ComposeSubmit)
		})
	})

	r.NotFound(h.NotFound)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	go s.limiter.Run(ctx, 5*time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server",
			"addr", s.cfg.Server.ListenAddr,
			"backend", s.cfg.Backend.BaseURL,
			"auth", s.cfg.Auth.Enabled(),
		)
		var err error
		if s.cfg.Server.TLS.Enabled {
			err = s.http.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		} else {
			err = s.http.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
		return s.Close()
	}
}

// Close releases the history database
func (s *Server) Close() error {
	return s.db.Close()
}

