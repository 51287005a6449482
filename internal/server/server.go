// Package server is the composition root: it opens the store, wires
// services, handlers and middleware onto a chi router, and runs the HTTP
// server with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/questlog/internal/auth"
	"github.com/sakif/questlog/internal/config"
	"github.com/sakif/questlog/internal/handler"
	"github.com/sakif/questlog/internal/middleware"
	"github.com/sakif/questlog/internal/repository"
	mongoRepo "github.com/sakif/questlog/internal/repository/mongo"
	sqliteRepo "github.com/sakif/questlog/internal/repository/sqlite"
	"github.com/sakif/questlog/internal/service"
)

// Server owns the router, the store and the background session janitor.
type Server struct {
	router  *chi.Mux
	config  *config.Server
	logger  *slog.Logger
	store   repository.Store
	janitor *service.SessionJanitor
}

// OpenStore opens the backend selected by cfg.DBDriver.
func OpenStore(ctx context.Context, cfg *config.Server) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverMongo:
		db, err := mongoRepo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverSQLite:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
}

// New wires the server. It takes ownership of store and closes it when
// Start returns.
func New(cfg *config.Server, store repository.Store, provider handler.IdentityProvider, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		janitor: service.NewSessionJanitor(store, cfg.SessionSweepInterval, logger),
	}

	authService := service.NewAuthService(store, store, tokens, logger)
	authHandler := handler.NewAuthHandler(provider, authService, handler.AuthConfig{
		Returns: handler.ReturnPolicy{
			Default: cfg.FrontendURL,
			Allowed: cfg.LoginRedirects,
		},
		CookieSecure: cfg.CookieSecure,
	}, logger)

	s.setupRoutes(authService, authHandler)
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
// GET       /health                   → liveness
// GET       /api/auth/oidc            → start login
// GET       /api/auth/oidc/callback   → finish login
// GET       /api/auth/current_user    → current user or 401
// GET, POST /api/auth/logout          → revoke session
// GET       /api/me                   → profile (RequireAuth)
//
// Middleware runs in the order added: RequestID, RealIP, Logger,
// Recoverer, CORS.
func (s *Server) setupRoutes(sessions auth.SessionValidator, h *handler.AuthHandler) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS(s.config.AllowedOrigins))

	s.router.Get("/health", handler.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/oidc", h.HandleLogin)
			r.Get("/oidc/callback", h.HandleCallback)

			r.Group(func(r chi.Router) {
				r.Use(auth.OptionalAuth(sessions))
				r.Get("/current_user", h.HandleCurrentUser)
				r.Get("/logout", h.HandleLogout)
				r.Post("/logout", h.HandleLogout)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(sessions))
			r.Get("/me", h.HandleMe)
		})
	})
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds, stops the janitor and closes the store.
func (s *Server) Start() error {
	defer s.store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.janitor.Run(ctx)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("driver", s.config.DBDriver),
			slog.String("issuer", s.config.OIDCIssuer),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
