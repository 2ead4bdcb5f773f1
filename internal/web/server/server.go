package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/broadcast/internal/composer"
	"github.com/foxzi/broadcast/internal/config"
	"github.com/foxzi/broadcast/internal/group"
	"github.com/foxzi/broadcast/internal/history"
	"github.com/foxzi/broadcast/internal/ipfilter"
	"github.com/foxzi/broadcast/internal/metrics"
	"github.com/foxzi/broadcast/internal/web/handlers"
	"github.com/foxzi/broadcast/internal/web/middleware"
	"github.com/foxzi/broadcast/internal/web/session"
	"github.com/foxzi/broadcast/internal/web/static"
	"github.com/foxzi/broadcast/internal/web/views"
	"github.com/foxzi/broadcast/internal/webhook"
)

const sessionSweepInterval = 10 * time.Minute

type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	http     *http.Server
	sessions *session.Store
	history  *history.Storage
	metrics  *metrics.Server
}

func New(cfg *config.Config, logger *slog.Logger, version string) (*Server, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to build group catalog: %w", err)
	}

	viewEngine, err := views.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize views: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		s.metrics = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger)
	}

	if cfg.History.Enabled() {
		s.history, err = history.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("history journal opened", "path", cfg.History.Path)
	}

	client := webhook.NewClient(cfg.Webhook.URL, webhook.Options{
		Timeout:   cfg.Webhook.Timeout,
		Headers:   cfg.Webhook.Headers,
		UserAgent: "broadcast/" + version,
	})
	sender := metrics.Instrument(client)
	formSender := history.Record(sender, s.history, history.SourceWeb, logger)
	apiSender := history.Record(sender, s.history, history.SourceAPI, logger)

	s.sessions = session.NewStore(func() *composer.Composer {
		return composer.New(catalog, formSender, logger)
	}, session.DefaultIdleTTL, cfg.Server.TLS.Enabled)

	csrfKey := cfg.CSRFKeyBytes()
	if csrfKey == nil {
		// Form tokens will not survive a restart
		csrfKey = make([]byte, 32)
		if _, err := rand.Read(csrfKey); err != nil {
			return nil, fmt.Errorf("failed to generate CSRF key: %w", err)
		}
	}

	h := handlers.New(catalog, s.sessions, apiSender, viewEngine, logger)

	// No WriteTimeout: confirm blocks on the webhook, which has no deadline by default
	s.http = &http.Server{
		Addr:        cfg.Server.ListenAddr,
		Handler:     s.setupRoutes(h, catalog, csrfKey),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) setupRoutes(h *handlers.Handlers, catalog *group.Catalog, csrfKey []byte) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(metrics.HTTPMiddleware)
	r.Use(middleware.SecurityHeaders)

	// Health check (no auth required)
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(ipfilter.New("web", s.cfg.Server.AllowedIPs, s.logger).Middleware)
		if s.cfg.Auth.Enabled() {
			r.Use(middleware.BasicAuth(s.cfg.Auth.Username, s.cfg.Auth.PasswordHash, s.logger))
		}

		r.Handle("/static/*", http.StripPrefix("/static/", static.Handler()))

		// Form
		r.Group(func(r chi.Router) {
			r.Use(middleware.CSRF(csrfKey, s.cfg.Server.TrustedOrigins, s.cfg.Server.TLS.Enabled))

			r.Get("/", h.Index)
			r.Post("/draft", h.Draft)
			r.Post("/groups/{id}/toggle", h.Toggle)
			r.Post("/confirm", h.Confirm)
			r.Post("/cancel", h.Cancel)
		})

		// JSON API
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/groups", h.APIGroups)
			r.Post("/broadcast", h.APIBroadcast)
		})
	})

	s.logger.Debug("routes configured", "groups", catalog.Len(), "auth", s.cfg.Auth.Enabled())
	return r
}

func (s *Server) Run(ctx context.Context) error {
	go s.sessions.Run(ctx, sessionSweepInterval)

	errCh := make(chan error, 2)

	if s.metrics != nil {
		go func() {
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	go func() {
		s.logger.Info("starting web server",
			"addr", s.cfg.Server.ListenAddr,
			"tls", s.cfg.Server.TLS.Enabled,
			"groups", len(s.cfg.Groups),
		)
		var err error
		if s.cfg.Server.TLS.Enabled {
			err = s.http.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		} else {
			err = s.http.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", "error", err)
	}
	if s.metrics != nil {
		if err := s.metrics.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	s.Close()
	return runErr
}

// Close releases the history journal
func (s *Server) Close() {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Error("failed to close history", "error", err)
		}
		s.history = nil
	}
}
