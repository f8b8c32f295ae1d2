package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/psprofi/audiocache/internal/cache"
	"github.com/psprofi/audiocache/internal/config"
	"github.com/psprofi/audiocache/internal/http/rest"
	"github.com/psprofi/audiocache/internal/logctx"
	"github.com/psprofi/audiocache/internal/pipeline"
	"github.com/psprofi/audiocache/internal/progress"
	"github.com/psprofi/audiocache/internal/runner"
	"github.com/psprofi/audiocache/internal/server"
	"github.com/psprofi/audiocache/internal/source"
	"github.com/psprofi/audiocache/internal/storage/sqlite"
	"github.com/psprofi/audiocache/internal/telemetry"
	"github.com/psprofi/audiocache/internal/tools"
	"github.com/psprofi/audiocache/internal/tracker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("audiocache starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("DB error: %w", err)
	}
	defer database.Close()

	tracks := sqlite.NewInstrumentedTrackRepository(database, tel)

	// =========================================================================
	// Start Tools
	provisioner := tools.NewProvisioner(cfg.ToolsDir, cfg.ExtractorVersion)

	if err := tel.InstrumentToolInstall(ctx, "all", func(ctx context.Context) error {
		return provisioner.EnsureInstalled(ctx, progress.Nop{})
	}); err != nil {
		return fmt.Errorf("tool provisioning failed: %w", err)
	}

	provisioner.CheckAndRefreshIfStale(ctx, time.Now().Unix(), cfg.ToolMaxAgeDays, progress.Nop{})

	// =========================================================================
	// Start Acquisition Pipeline
	store, err := cache.NewStore(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}

	trk := tracker.New()
	go trk.Reap(ctx, cfg.ReapInterval)

	toolRunner := runner.New(provisioner.ExtractorPath(), provisioner.TranscoderPath(), cfg.ToolsDir)

	orch := pipeline.NewOrchestrator(
		store, provisioner, trk, toolRunner, tel,
		cfg.ExtractorTimeout, cfg.TranscodeTimeout,
	)

	audioServer := server.New(cfg.Web.BindAddress, tel)
	defer audioServer.Close()

	src := source.NewYtDlpSource(orch, toolRunner, trk, audioServer, tracks, cfg.MetadataTimeout, cfg.ThumbnailTimeout)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	httpServer := setupServer(ctx, cfg, tel, audioServer, src, store)

	go func() {
		logger.Info("serving audio", "host", cfg.Web.BindAddress)
		serverErrors <- httpServer.ListenAndServe()
	}()

	logger.Info("ready",
		"cache_dir", cfg.CacheDir,
		"tools_dir", cfg.ToolsDir,
		"reap_interval", cfg.ReapInterval.String(),
	)

	// =========================================================================
	// Start Main Loop
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		trk.CancelAll(ctx)

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = httpServer.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

// setupServer prepares the handlers and services to create the http server.
func setupServer(
	ctx context.Context,
	cfg *config.Config,
	tel *telemetry.Telemetry,
	audioServer *server.Server,
	src *source.YtDlpSource,
	store *cache.Store,
) *http.Server {
	r := chi.NewRouter()

	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(telemetry.HTTPLogging)

	r.Mount("/", audioServer.Routes())
	r.Mount("/api", rest.NewSourceHandler(src, store, cfg.CacheClearOldAge).Routes())
	r.Handle("/metrics", tel.Handler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
