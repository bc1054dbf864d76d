// Package app wires the composer's components together and runs them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailstorm/composer/internal/api"
	"github.com/mailstorm/composer/internal/backend"
	"github.com/mailstorm/composer/internal/config"
	"github.com/mailstorm/composer/internal/draft"
	"github.com/mailstorm/composer/internal/journal"
	"github.com/mailstorm/composer/internal/metrics"
	"github.com/mailstorm/composer/internal/orchestrator"
	"github.com/mailstorm/composer/internal/session"
)

// App is the main application
type App struct {
	config    *config.Config
	session   *session.Session
	store     *draft.Store
	orch      *orchestrator.Orchestrator
	journal   *journal.Journal
	apiServer *api.Server
	logger    *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	sess := session.New(cfg.Backend.Token, cfg.Backend.User)
	client := backend.NewClient(cfg.Backend.BaseURL, sess, cfg.Backend.Timeout)

	m := metrics.New()

	store := draft.New(client, logger, m, draft.Config{
		SenderEmail:      cfg.Composer.SenderEmail,
		AutosaveDebounce: cfg.Composer.AutosaveDebounce,
	})

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	orch := orchestrator.New(store, client, j, newLogNotifier(logger), logger, m, orchestrator.Config{
		NavigateDelay: cfg.Composer.NavigateDelay,
	})

	apiServer := api.NewServer(store, orch, client, j, m, &cfg.Server, logger.With("component", "api"))

	return &App{
		config:    cfg,
		session:   sess,
		store:     store,
		orch:      orch,
		journal:   j,
		apiServer: apiServer,
		logger:    logger,
	}, nil
}

// Run starts the API server and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting composer",
		"api_addr", a.config.Server.ListenAddr,
		"backend", a.config.Backend.BaseURL,
		"user", a.session.User(),
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	// Pending autosaves are cancelled; in-flight writes finish on their own.
	a.store.Close()
	a.session.Close()

	if err := a.journal.Close(); err != nil {
		a.logger.Error("journal close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// logNotifier surfaces send outcomes in the service log.
type logNotifier struct {
	logger *slog.Logger
}

func newLogNotifier(logger *slog.Logger) *logNotifier {
	return &logNotifier{logger: logger.With("component", "notifier")}
}

func (n *logNotifier) Info(msg string) {
	n.logger.Info(msg)
}

func (n *logNotifier) Error(msg string) {
	n.logger.Error(msg)
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
