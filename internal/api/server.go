// Package api exposes the campaign editing session over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mailstorm/composer/internal/backend"
	"github.com/mailstorm/composer/internal/config"
	"github.com/mailstorm/composer/internal/draft"
	"github.com/mailstorm/composer/internal/journal"
	"github.com/mailstorm/composer/internal/metrics"
	"github.com/mailstorm/composer/internal/orchestrator"
)

// GroupLister lists the available address books.
type GroupLister interface {
	Groups(ctx context.Context) ([]backend.Group, error)
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	store      *draft.Store
	orch       *orchestrator.Orchestrator
	groups     GroupLister
	journal    *journal.Journal
	metrics    *metrics.Metrics
	config     *config.ServerConfig
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(store *draft.Store, orch *orchestrator.Orchestrator, groups GroupLister, j *journal.Journal, m *metrics.Metrics, cfg *config.ServerConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		orch:      orch,
		groups:    groups,
		journal:   j,
		metrics:   m,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/drafts/{campaignID}/open", s.handleOpenDraft)

		r.Route("/draft", func(r chi.Router) {
			r.Get("/", s.handleDraft)
			r.Get("/completion", s.handleCompletion)
			r.Get("/split", s.handleSplit)
			r.Patch("/name", s.handleRename)
			r.Put("/group", s.handleSetGroup)
			r.Patch("/sendinfo", s.handleUpdateSendInfo)
			r.Put("/content/{variant}", s.handleSetContent)
			r.Post("/content/copy", s.handleCopyContent)
		})

		r.Get("/groups", s.handleGroups)

		r.Route("/send", func(r chi.Router) {
			r.Get("/state", s.handleSendState)
			r.Post("/preview", s.handleOpenPreview)
			r.Delete("/preview", s.handleClosePreview)
			r.Post("/confirm", s.handleConfirm)
		})

		r.Get("/journal", s.handleJournal)
	})
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
