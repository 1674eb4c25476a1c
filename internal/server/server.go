// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB ─┬→ IdentityResolver ─→ AuthService ─→ AuthHandler
//	  github.Client ┤                   GitHubService → GitHubHandler
//	  auth.Cipher ──┤                   ProjectService → ProjectHandler
//	  auth.TokenIssuer ┘                UserService ───→ UserHandler
//
// This is the "composition root": everything is wired here, once, and
// every layer below only sees interfaces or the services it needs.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/config"
	"github.com/sakif/opensource-hub/internal/github"
	"github.com/sakif/opensource-hub/internal/handler"
	"github.com/sakif/opensource-hub/internal/middleware"
	sqliteRepo "github.com/sakif/opensource-hub/internal/repository/sqlite"
	"github.com/sakif/opensource-hub/internal/service"
)

// shutdownTimeout is how long in-flight requests get to finish.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database pool. Start closes it after the HTTP server
// has drained; callers that never Start must call Close.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database, builds every service and registers the routes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === DATABASE ===
	db, err := sqliteRepo.New(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// === CRYPTO AND TOKENS ===
	cipher, err := auth.NewCipher(cfg.GitHub.EncryptKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token cipher: %w", err)
	}
	tokens, err := auth.NewTokenIssuer(cfg.JWT.Secret, auth.WithTTLs(cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token issuer: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	gh := github.New(github.Config{
		ClientID:     cfg.GitHub.ClientID,
		ClientSecret: cfg.GitHub.ClientSecret,
		BaseURL:      cfg.GitHub.BaseURL,
		OAuthBaseURL: cfg.GitHub.OAuthBaseURL,
		Timeout:      cfg.GitHub.Timeout,
		MaxPages:     cfg.GitHub.MaxPages,
	}, &http.Client{}, logger)

	s.setupRoutes(gh, cipher, tokens)
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /health                    → liveness + database ping
//	GET    /github/callback           → OAuth callback (login rate limit)
//	PATCH  /token/refresh             → new access token from refresh cookie
//	POST   /logout                    → clear refresh cookie
//	GET    /github/user/repos         → user's GitHub repositories    [auth]
//	GET    /tags, /skills             → seeded catalogues
//	GET    /projects                  → listing                        [optional auth]
//	POST   /projects                  → submit                         [auth]
//	PATCH  /projects/{id}             → owner edit                     [auth]
//	DELETE /projects/{id}             → owner delete                   [auth]
//	POST   /projects/{id}/vote        → vote / DELETE to remove        [auth]
//	POST   /projects/{id}/bookmark    → bookmark / DELETE to remove    [auth]
//	GET    /users/me                  → profile / PATCH / DELETE       [auth]
//	GET    /users/me/projects         → submitted projects             [auth]
//	GET    /users/me/bookmarks        → bookmarked projects            [auth]
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: tags the request for the log line
//  2. RealIP: RemoteAddr becomes the client IP (rate limit key)
//  3. Logger: logs every request, including rejected ones
//  4. Recoverer: a panic becomes a 500 instead of killing the process
//  5. CORS: answers preflights before they count against the limit
//  6. Global rate limit
func (s *Server) setupRoutes(gh *github.Client, cipher *auth.Cipher, tokens *auth.TokenIssuer) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.config.FrontendBaseURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	global := middleware.NewRateLimiter("global", s.config.RateLimit.Global, s.config.RateLimit.Window, s.logger)
	login := middleware.NewRateLimiter("login", s.config.RateLimit.Login, s.config.RateLimit.Window, s.logger)
	s.router.Use(global.Middleware)

	// === SERVICES ===
	// s.db implements every repository interface; services only see those.
	resolver := service.NewIdentityResolver(s.db, cipher, auth.NewPasswordService(), s.logger)
	authService := service.NewAuthService(gh, resolver, tokens, s.logger)
	githubService := service.NewGitHubService(gh, s.db, cipher, s.logger)
	projectService := service.NewProjectService(s.db, s.db, s.db, s.db, gh, cipher, s.logger)
	userService := service.NewUserService(s.db, s.logger)

	// === HANDLERS ===
	authHandler := handler.NewAuthHandler(authService, s.config.FrontendBaseURL, s.config.IsProduction(), s.logger)
	githubHandler := handler.NewGitHubHandler(githubService, s.logger)
	projectHandler := handler.NewProjectHandler(projectService, s.logger)
	userHandler := handler.NewUserHandler(userService, projectService, authHandler, s.logger)

	// === PUBLIC ROUTES ===
	s.router.Get("/health", s.handleHealth)
	s.router.With(login.Middleware).Get("/github/callback", authHandler.HandleGitHubCallback)
	s.router.Patch("/token/refresh", authHandler.HandleRefresh)
	s.router.Post("/logout", authHandler.HandleLogout)
	s.router.Get("/tags", projectHandler.HandleListTags)
	s.router.Get("/skills", userHandler.HandleListSkills)
	s.router.With(auth.OptionalAuth(tokens)).Get("/projects", projectHandler.HandleList)

	// === AUTHENTICATED ROUTES ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/github/user/repos", githubHandler.HandleListRepos)

		r.Post("/projects", projectHandler.HandleSubmit)
		r.Route("/projects/{id}", func(r chi.Router) {
			r.Patch("/", projectHandler.HandleUpdate)
			r.Delete("/", projectHandler.HandleDelete)
			r.Post("/vote", projectHandler.HandleVote)
			r.Delete("/vote", projectHandler.HandleUnvote)
			r.Post("/bookmark", projectHandler.HandleBookmark)
			r.Delete("/bookmark", projectHandler.HandleUnbookmark)
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", userHandler.HandleMe)
			r.Patch("/", userHandler.HandleUpdate)
			r.Delete("/", userHandler.HandleDelete)
			r.Get("/projects", userHandler.HandleMyProjects)
			r.Get("/bookmarks", userHandler.HandleMyBookmarks)
		})
	})
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Handler exposes the router, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it on shutdown.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections (SIGINT / SIGTERM)
//  2. Wait up to 30s for in-flight requests
//  3. Close the database (flushes the WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Long enough for a full paginated GitHub fetch.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
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

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
