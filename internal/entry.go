// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/chatsync/internal/api"
	"github.com/starford/chatsync/internal/backup"
	"github.com/starford/chatsync/internal/cloud"
	"github.com/starford/chatsync/internal/convstore"
	"github.com/starford/chatsync/internal/mcpserver"
	"github.com/starford/chatsync/internal/session"
	"github.com/starford/chatsync/internal/settingsstore"
	"github.com/starford/chatsync/internal/sse"
	"github.com/starford/chatsync/internal/storage"
	"github.com/starford/chatsync/internal/syncer"
)

// App holds the wired components shared by every command.
type App struct {
	Config        *Config
	Logger        *slog.Logger
	Settings      *settingsstore.Store
	Conversations *convstore.DB
	Session       *session.Store
	Cloud         *cloud.Client
	Backups       *backup.Manager
	Sync          *syncer.Orchestrator

	version string
	closers []io.Closer
}

// Close releases the database and the log file.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func newLogger(cfg ApplicationConfig, out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out, closer = lj, lj
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return logger, closer
}

// Open builds every component from the configuration without starting any
// background work.
func Open(opts ...Option) (*App, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger, logCloser := newLogger(cfg.App, app.logOutput)
	slog.SetDefault(logger)

	a := &App{Config: cfg, Logger: logger, version: app.version}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}

	settingsPath := cfg.Data.Resolve(cfg.Data.SettingsFile)
	sqlitePath := cfg.Data.Resolve(cfg.Data.SQLitePath)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Data.Dir),
		slog.String("settings_path", settingsPath),
		slog.String("sqlite_path", sqlitePath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure data directory exists.
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		a.Close()
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	// Initialize settings storage.
	fs, err := storage.NewFS(filepath.Dir(settingsPath))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.Settings, err = settingsstore.Open(fs, filepath.Base(settingsPath), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init settings: %w", err)
	}

	// Initialize SQLite conversation store.
	a.Conversations, err = convstore.Open(sqlitePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init conversations: %w", err)
	}
	a.closers = append(a.closers, a.Conversations)

	a.Session, err = session.Open(cfg.Session.Options())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init session: %w", err)
	}

	a.Cloud = cloud.NewClient(&http.Client{Timeout: cfg.Cloud.Timeout}, cfg.Cloud.BaseURL)
	a.Backups = backup.NewManager(a.Settings, a.Conversations, backup.WebDavDialer(cfg.Backup.Timeout), logger)
	a.Sync = syncer.New(a.Settings, a.Conversations, a.Session, a.Cloud, a.Backups, syncer.Options{
		Window:  cfg.Sync.Debounce,
		Advance: cfg.Sync.Advance,
		Logger:  logger,
	})
	logger.Info("Components initialized",
		slog.String("settings_root", fs.Root()),
		slog.String("cloud_endpoint", a.Cloud.BaseURL()),
		slog.String("advance", string(cfg.Sync.Advance)))
	return a, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	a, err := Open(opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, logger := a.Config, a.Logger
	exportDir := cfg.Data.Resolve(cfg.Data.ExportDir)

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	unsubscribe := a.Sync.Subscribe(func(ev syncer.Event) {
		broker.PublishState(ev.Op, ev.State)
	})
	defer unsubscribe()

	// Build API router (includes SSE at /events, protected by auth).
	apiRouter := api.NewRouter(a.Sync, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, exportDir)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload settings edited by other processes.
	g.Go(func() error {
		if err := settingsstore.Watch(gCtx, a.Settings, logger); err != nil {
			logger.Warn("settings watcher unavailable", slog.String("error", err.Error()))
		}
		return nil
	})

	// Forward settings changes to SSE clients.
	g.Go(func() error {
		changes := a.Settings.Observe(gCtx)
		<-changes
		for range changes {
			broker.PublishSettingsChanged()
		}
		return nil
	})

	// Auto-sync loop.
	if cfg.Sync.AutoSync {
		g.Go(func() error {
			if err := a.Sync.StartAutoSync(gCtx); err != nil {
				return fmt.Errorf("start auto-sync: %w", err)
			}
			<-gCtx.Done()
			a.Sync.Stop()
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the server is down so the watcher and
// auto-sync goroutines exit.
var errShutdown = errors.New("shutdown")

// ServeMCP runs the MCP server on stdio, with auto-sync in the background
// when enabled. Logs must not go to stdout here.
func ServeMCP(ctx context.Context, opts ...Option) error {
	a, err := Open(append([]Option{WithLogOutput(os.Stderr)}, opts...)...)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := settingsstore.Watch(ctx, a.Settings, a.Logger); err != nil {
			a.Logger.Warn("settings watcher unavailable", slog.String("error", err.Error()))
		}
	}()
	if a.Config.Sync.AutoSync {
		if err := a.Sync.StartAutoSync(ctx); err != nil {
			return fmt.Errorf("start auto-sync: %w", err)
		}
		defer a.Sync.Stop()
	}

	a.Logger.Info("MCP server starting on stdio")
	return mcpserver.New(a.Sync, a.version).ServeStdio()
}
