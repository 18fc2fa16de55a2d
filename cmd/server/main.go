package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/backend"
	"github.com/stemsi/exstem-runtime/internal/config"
	"github.com/stemsi/exstem-runtime/internal/database"
	"github.com/stemsi/exstem-runtime/internal/handler"
	"github.com/stemsi/exstem-runtime/internal/logger"
	"github.com/stemsi/exstem-runtime/internal/metrics"
	"github.com/stemsi/exstem-runtime/internal/repository"
	"github.com/stemsi/exstem-runtime/internal/router"
	"github.com/stemsi/exstem-runtime/internal/service"
	"github.com/stemsi/exstem-runtime/internal/session"
	"github.com/stemsi/exstem-runtime/internal/storage"
	"github.com/stemsi/exstem-runtime/internal/validator"
	"github.com/stemsi/exstem-runtime/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("snapshot_backend", cfg.SnapshotBackend).
		Msg("Starting ExStem session runtime")

	// ─── Initialize Validator & Metrics ────────────────────────────────
	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Snapshot Store ────────────────────────────────────────────────
	var (
		store session.Store
		rdb   *redis.Client
	)
	workerDone := make(chan struct{})
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	switch cfg.SnapshotBackend {
	case config.SnapshotBackendMemory:
		log.Warn().Msg("Using in-memory snapshot store, sessions do not survive restarts")
		store = storage.NewMemoryStore()
		close(workerDone)

	default:
		// ─── Connect to PostgreSQL ─────────────────────────────────────
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		// ─── Connect to Redis ──────────────────────────────────────────
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		archive := repository.NewSnapshotRepository(pool)
		store = storage.NewRedisStore(rdb, archive, storage.DefaultSnapshotTTL, log)

		// ─── Start Background Workers ──────────────────────────────────
		snapshotWorker := worker.NewSnapshotWorker(archive, rdb, log)
		go func() {
			defer close(workerDone)
			snapshotWorker.Start(workerCtx)
		}()
	}

	// ─── Initialize Services ──────────────────────────────────────────
	backendClient := backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, log)
	authService := service.NewAuthService(cfg)
	sessionService := service.NewSessionService(cfg, store, func(token string) service.Backend {
		return backendClient.WithToken(token)
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(sessionService, log),
		WS:      handler.NewWSHandler(sessionService, cfg, log),
		System:  handler.NewSystemHandler(rdb, sessionService, log),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Unmount live sessions. Hijacked WebSocket connections are not covered by
	// srv.Shutdown; each unmount flushes its snapshot.
	sessionCtx, sessionCancel := context.WithTimeout(context.Background(), cfg.SubmitTimeout+5*time.Second)
	defer sessionCancel()
	if err := sessionService.Shutdown(sessionCtx); err != nil {
		log.Error().Err(err).Int("sessions", sessionService.Active()).Msg("Sessions still mounted at shutdown")
	}

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Snapshot worker did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
