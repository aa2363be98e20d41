// Package server is the composition root: it builds every dependency from
// config, wires handlers to routes and runs the HTTP server until a signal
// asks it to stop.
//
// DEPENDENCY CHAIN:
//
//	config → sqlite.DB ─┬→ ListingService ─→ ListingHandler
//	         redis ─────┘   UserService    ─→ UserHandler
//	         TokenService → AuthService    ─→ AuthHandler
//	                       TokenSessionValidator → RequireAuth
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/bullaburg/game-saviour/internal/auth"
	"github.com/bullaburg/game-saviour/internal/cache"
	"github.com/bullaburg/game-saviour/internal/config"
	"github.com/bullaburg/game-saviour/internal/handler"
	"github.com/bullaburg/game-saviour/internal/metrics"
	"github.com/bullaburg/game-saviour/internal/middleware"
	sqliteRepo "github.com/bullaburg/game-saviour/internal/repository/sqlite"
	"github.com/bullaburg/game-saviour/internal/service"
)

const metricsNamespace = "game_saviour"

// Server owns the router and the resources it must release on shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	redis   *redis.Client // nil when the cache is disabled
	metrics *metrics.Metrics
}

// New opens the database, connects the optional cache and wires all routes.
//
// Redis is optional: if it is configured but unreachable the server logs a
// warning and serves reads straight from SQLite.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(metricsNamespace),
	}

	if cfg.Redis.Enabled() {
		client, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, listing cache disabled", slog.String("error", err.Error()))
		} else {
			s.redis = client
		}
	}

	if err := s.setupRoutes(); err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
// ROUTES (* = session required):
//
//	GET    /healthz                liveness + DB ping
//	GET    /metrics                Prometheus
//	GET    /api/listings           search
//	GET    /api/listings/{id}      one listing
//	POST   /api/users              register
//	POST   /api/listings           create listing *
//	PUT    /api/listings/{id}      update listing *
//	DELETE /api/listings/{id}      delete listing *
//	GET    /api/my-listings        own listings *
//	GET    /api/users/me           profile *
//	PUT    /api/users/me           edit profile *
//	DELETE /api/users/me           delete account *
//	GET    /api/users/{id}         public profile *
//	GET    /auth/google/login      only with Google credentials
//	GET    /auth/google/callback   only with Google credentials
//	POST   /auth/login
//	POST   /auth/logout
//
// Middleware order: RequestID → RealIP → Logger → Metrics → Recoverer, so a
// recovered panic is still logged and counted as a 500.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()
	validator := auth.NewTokenSessionValidator(tokens)

	listingOpts := []service.ListingOption{service.WithMetrics(s.metrics)}
	if s.redis != nil {
		listingOpts = append(listingOpts, service.WithCache(cache.NewListingCache(s.redis, s.config.Redis.TTL)))
	}

	listingService := service.NewListingService(s.db, s.db, s.logger, listingOpts...)
	userService := service.NewUserService(s.db, passwords, s.logger)
	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)

	listingHandler := handler.NewListingHandler(listingService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.config.Auth.SecureCookie, s.logger)

	var provider handler.IdentityProvider
	if s.config.Auth.GoogleEnabled() {
		provider = auth.NewGoogleProvider(
			s.config.Auth.GoogleClientID,
			s.config.Auth.GoogleClientSecret,
			s.config.Auth.GoogleCallbackURL,
		)
	} else {
		s.logger.Warn("Google credentials not set, /auth/google routes disabled")
	}
	authHandler := handler.NewAuthHandler(provider, authService, tokens.TTL(), s.config.Auth.SecureCookie, s.logger)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/listings", listingHandler.HandleList)
		r.Get("/listings/{id}", listingHandler.HandleGetByID)
		r.Post("/users", userHandler.HandleRegister)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(validator))

			r.Post("/listings", listingHandler.HandleCreate)
			r.Put("/listings/{id}", listingHandler.HandleUpdate)
			r.Delete("/listings/{id}", listingHandler.HandleDelete)
			r.Get("/my-listings", listingHandler.HandleListMine)

			r.Get("/users/me", userHandler.HandleMe)
			r.Put("/users/me", userHandler.HandleUpdateMe)
			r.Delete("/users/me", userHandler.HandleDeleteMe)
			r.Get("/users/{id}", userHandler.HandlePublicProfile)
		})
	})

	s.router.Route("/auth", func(r chi.Router) {
		if provider != nil {
			r.Get("/google/login", authHandler.HandleGoogleLogin)
			r.Get("/google/callback", authHandler.HandleGoogleCallback)
		}
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
	})

	return nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp, code := healthResponse{Status: "ok", Database: "ok"}, http.StatusOK

	if err := s.db.Ping(); err != nil {
		s.logger.Error("health check: database", slog.String("error", err.Error()))
		resp.Status, resp.Database = "degraded", "unavailable"
		code = http.StatusServiceUnavailable
	}

	// Reads fall back to SQLite, so a dead cache is reported but not fatal.
	if s.redis != nil {
		resp.Cache = "ok"
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			resp.Cache = "unavailable"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// Start runs the HTTP server and handles graceful shutdown.
//
// On SIGINT/SIGTERM it stops accepting connections, waits up to
// HTTP.ShutdownTimeout for in-flight requests, then closes the database and
// the cache client.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:         s.config.HTTP.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DB.Path),
			slog.Bool("cache", s.redis != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
