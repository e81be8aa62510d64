// Package server is the composition root: it builds the services and
// handlers, mounts the routes, and runs the HTTP server until a shutdown
// signal arrives.
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
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roaa-mamdouh/mermaid-studio/internal/auth"
	"github.com/roaa-mamdouh/mermaid-studio/internal/collab"
	"github.com/roaa-mamdouh/mermaid-studio/internal/config"
	"github.com/roaa-mamdouh/mermaid-studio/internal/handler"
	"github.com/roaa-mamdouh/mermaid-studio/internal/jobs"
	"github.com/roaa-mamdouh/mermaid-studio/internal/middleware"
	"github.com/roaa-mamdouh/mermaid-studio/internal/notify"
	"github.com/roaa-mamdouh/mermaid-studio/internal/render"
	sqliteRepo "github.com/roaa-mamdouh/mermaid-studio/internal/repository/sqlite"
	"github.com/roaa-mamdouh/mermaid-studio/internal/service"
	"github.com/roaa-mamdouh/mermaid-studio/internal/storage"
)

const (
	shutdownTimeout = 30 * time.Second
	healthTimeout   = 2 * time.Second
)

// Deps are the infrastructure pieces main constructs. The server does not
// own them; main closes them after Start returns.
type Deps struct {
	DB       *sqliteRepo.DB
	Collab   collab.Store
	Files    storage.FileStore
	Notifier notify.Notifier
	Tokens   *auth.TokenService

	// Renderer is nil when server-side rendering is disabled.
	Renderer render.Renderer
	// GitHub is nil when OAuth is not configured; the login routes are then
	// not mounted.
	GitHub *auth.GitHubProvider
	// Registry defaults to a fresh registry with the Go and process
	// collectors.
	Registry *prometheus.Registry
}

type Server struct {
	router    *chi.Mux
	config    *config.Config
	deps      Deps
	logger    *slog.Logger
	scheduler *jobs.Scheduler
}

// New wires every service and handler and mounts the routes.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
		deps.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() error {
	db := s.deps.DB

	// === Services ===
	authz := service.NewAuthorizer(db)
	authService := service.NewAuthService(db, s.deps.Tokens, s.config.Auth.AdminLogins, s.logger)
	diagrams := service.NewDiagramService(db, db, db, authz, s.logger)
	versions := service.NewVersionService(db, diagrams, s.logger)
	shares := service.NewShareService(db, db, authz, s.deps.Notifier, s.logger)
	folders := service.NewFolderService(db, db, diagrams, s.logger)
	comments := service.NewCommentService(db, diagrams, s.logger)
	collabService := service.NewCollabService(s.deps.Collab, diagrams, s.logger)
	exports := service.NewExportService(diagrams, db, s.deps.Files, s.deps.Renderer, s.logger)

	retention := time.Duration(s.config.App.ShareRetentionDays) * 24 * time.Hour
	scheduler, err := jobs.NewScheduler(shares, retention, s.logger)
	if err != nil {
		return err
	}
	s.scheduler = scheduler

	// === Handlers ===
	authHandler := handler.NewAuthHandler(s.deps.GitHub, authService, s.deps.Tokens, s.logger)
	diagramHandler := handler.NewDiagramHandler(diagrams, collabService, authService, s.logger)
	versionHandler := handler.NewVersionHandler(versions, authService, s.logger)
	shareHandler := handler.NewShareHandler(shares, authService, s.logger)
	folderHandler := handler.NewFolderHandler(folders, authService, s.logger)
	commentHandler := handler.NewCommentHandler(comments, authService, s.logger)
	collabHandler := handler.NewCollabHandler(collabService, authService, s.logger)
	exportHandler := handler.NewExportHandler(exports, authService, s.logger)
	pageHandler, err := handler.NewPageHandler(shares, s.config.Server.TemplateDir, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}

	metrics, err := middleware.NewMetrics(s.deps.Registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	limiter := middleware.NewRateLimiter(s.config.Server.PublicRateLimit)

	// === Global middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(metrics.Handler)

	// === Ops ===
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))

	// === Pages and files ===
	s.router.With(limiter.Handler).Get("/s/{token}", pageHandler.HandleShare)
	s.router.With(auth.OptionalAuth(s.deps.Tokens)).Get(storage.URLPrefix+"*", exportHandler.HandleDownload)

	// === Auth ===
	if s.deps.GitHub != nil {
		s.router.Route("/auth", func(r chi.Router) {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
			r.Post("/logout", authHandler.HandleLogout)
		})
	} else {
		s.logger.Warn("GitHub OAuth not configured, login routes disabled")
	}

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		r.With(limiter.Handler).Get("/public/{token}", shareHandler.HandlePublic)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.deps.Tokens))
			r.Get("/me", authHandler.HandleMe)
			r.Put("/users/{id}/role", authHandler.HandleSetRole)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(s.deps.Tokens))

			r.Get("/diagrams", diagramHandler.HandleList)
			r.Post("/diagrams", diagramHandler.HandleCreate)
			r.Route("/diagrams/{id}", func(r chi.Router) {
				r.Get("/", diagramHandler.HandleGet)
				r.Patch("/", diagramHandler.HandleUpdate)
				r.Delete("/", diagramHandler.HandleDelete)
				r.Post("/preview", diagramHandler.HandlePreview)

				r.Get("/versions", versionHandler.HandleList)

				r.Get("/shares", shareHandler.HandleList)
				r.Post("/shares", shareHandler.HandleShare)

				r.Get("/comments", commentHandler.HandleList)
				r.Post("/comments", commentHandler.HandleAdd)

				r.Post("/active-users", collabHandler.HandleActiveUsers)
				r.Get("/cursors", collabHandler.HandleCursors)
				r.Put("/cursors", collabHandler.HandleUpdateCursor)
				r.Post("/editing-session", collabHandler.HandleStartEditing)
				r.Delete("/editing-session", collabHandler.HandleEndEditing)

				r.Post("/export/{format}", exportHandler.HandleExport)
			})

			r.Get("/versions/{id}/diff", versionHandler.HandleDiff)
			r.Post("/versions/{id}/restore", versionHandler.HandleRestore)

			r.Delete("/shares/{id}", shareHandler.HandleRevoke)
			r.Delete("/comments/{id}", commentHandler.HandleDelete)

			r.Get("/folders", folderHandler.HandleList)
			r.Post("/folders", folderHandler.HandleCreate)
			r.Route("/folders/{id}", func(r chi.Router) {
				r.Get("/", folderHandler.HandleGet)
				r.Patch("/", folderHandler.HandleUpdate)
				r.Delete("/", folderHandler.HandleDelete)
				r.Get("/diagrams", folderHandler.HandleDiagrams)
				r.Get("/subfolders", folderHandler.HandleSubfolders)
				r.Post("/move", folderHandler.HandleMove)
			})

			r.Post("/import/{format}", exportHandler.HandleImport)
			r.Post("/files", exportHandler.HandleUpload)

			r.Get("/tags/popular", diagramHandler.HandlePopularTags)
		})
	})

	return nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth pings the database and the collaboration store.
//
// HTTP: GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]string{}}
	check := func(name string, err error) {
		if err != nil {
			s.logger.Warn("health check failed", slog.String("check", name), slog.String("error", err.Error()))
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			return
		}
		resp.Checks[name] = "ok"
	}
	check("database", s.deps.DB.Ping(ctx))
	check("collab", s.deps.Collab.Ping(ctx))

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode health response", slog.String("error", err.Error()))
	}
}

// Start serves HTTP and runs the job scheduler until SIGINT or SIGTERM,
// then drains in-flight requests.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // PDF renders can be slow
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Server.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	s.scheduler.Start()

	select {
	case err := <-serverErrors:
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.scheduler.Stop(ctx)
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
		s.scheduler.Stop(ctx)
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
