package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/watchwell/screener/internal/api"
	"github.com/watchwell/screener/internal/auditlog"
	"github.com/watchwell/screener/internal/catalog"
	"github.com/watchwell/screener/internal/config"
	"github.com/watchwell/screener/internal/index"
	"github.com/watchwell/screener/internal/indexer"
	"github.com/watchwell/screener/internal/matcher"
	"github.com/watchwell/screener/internal/search"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Screener - sanctions and watchlist matching service",
	RunE:  serve,
}

// setup loads configuration and initializes logging, shared by all commands.
func setup() (*config.Config, error) {
	// Local development keeps credentials in .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("configuration loaded", "log_level", cfg.Log.Level)
	return cfg, nil
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := setup()
	if err != nil {
		return err
	}

	provider, err := index.NewOpenSearchProvider(ctx, cfg.Index)
	if err != nil {
		return err
	}
	slog.Info("search backend connected", "url", cfg.Index.URL, "type", cfg.Index.Type)

	manifest, err := catalog.LoadManifest(cfg.Catalog.Manifest)
	if err != nil {
		return err
	}
	loader := catalog.NewLoader(manifest)
	cache := catalog.NewCache(loader, 10*time.Minute)

	audit := auditlog.New(provider, cfg.Index.Name)
	ingest := indexer.New(cfg, provider, loader, audit)
	scheduler := indexer.NewScheduler(ingest, cfg.Indexer.Crontab)

	svc := search.New(cfg, provider)
	match := matcher.New(cfg, svc)
	handler := api.NewHandler(cfg, svc, match, cache, provider, scheduler)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	var wg sync.WaitGroup
	if cfg.Indexer.AutoReindex {
		startWorker(ctx, &wg, "scheduler", scheduler.Run)
	} else {
		slog.Info("automatic reindexing disabled")
	}

	go func() {
		slog.Info("server starting", "address", addr, "version", Version)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		// Any other error indicates an actual server failure that should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	if err := provider.Close(); err != nil {
		slog.Error("search backend close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
