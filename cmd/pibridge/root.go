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

	"github.com/spf13/cobra"

	"github.com/pibridge/pibridge/internal/api"
	"github.com/pibridge/pibridge/internal/config"
	"github.com/pibridge/pibridge/internal/device"
	"github.com/pibridge/pibridge/internal/outbox"
	"github.com/pibridge/pibridge/internal/recorder"
	"github.com/pibridge/pibridge/internal/store"
	"github.com/pibridge/pibridge/internal/syncer"
	"github.com/pibridge/pibridge/internal/upload"
	"github.com/pibridge/pibridge/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "pibridge",
	Short: "PiBridge - offline-tolerant iOS telemetry agent",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	initLogger(cfg.Log)
	slog.Info("configuration loaded", "agent_id", cfg.Backend.AgentID)

	// 4. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Outbox queue over the same database handle, plus startup
	// reconciliation: entries stranded in processing by a crash go back
	// to pending before anything else runs.
	queue := outbox.NewQueue(db.DB())
	recovered, err := queue.RecoverStuck(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		slog.Warn("recovered stuck operations", "count", recovered)
	}

	if err := os.MkdirAll(cfg.Screenshots.Dir, 0o755); err != nil {
		return fmt.Errorf("create screenshots dir: %w", err)
	}

	// 6. Device collector and recorder
	collector := device.NewIMobileDevice()
	rec := recorder.New(db)

	// 7. Sync engine
	if cfg.Backend.URL == "" {
		slog.Warn("no backend configured, operations will queue locally")
	}
	backend := syncer.NewHTTPBackend(cfg.Backend.URL, cfg.Backend.AgentID)
	engine := syncer.NewEngine(queue, backend,
		syncer.WithBatchSize(cfg.Sync.BatchSize),
		syncer.WithMaxAttempts(cfg.Sync.MaxAttempts),
	)

	// 8. Screenshot archive uploader
	uploader, err := upload.NewUploader(cfg.Archive)
	if err != nil {
		return err
	}

	// 9. HTTP router
	handler := api.NewHandler(db, queue, collector, rec, engine, uploader,
		cfg.Screenshots.Dir, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 10. Background workers
	var wg sync.WaitGroup
	syncWorker := worker.NewSyncCoordinator(engine, time.Duration(cfg.Sync.Interval))
	startWorker(ctx, &wg, "sync-coordinator", syncWorker.Run)

	sweeper := worker.NewRetentionSweeper(queue, time.Duration(cfg.Sync.SweepInterval), cfg.Sync.RetentionDays)
	startWorker(ctx, &wg, "retention-sweeper", sweeper.Run)

	// 11. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Any other error triggers shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 12. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 13. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func initLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
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

// openQueue opens the configured database for the one-shot subcommands.
// The caller must close the returned store.
func openQueue() (*store.SQLiteStore, *outbox.Queue, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	return db, outbox.NewQueue(db.DB()), cfg, nil
}
