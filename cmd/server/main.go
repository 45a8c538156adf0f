package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brojonat/whalealert/service/config"
	"github.com/brojonat/whalealert/service/db"
	"github.com/brojonat/whalealert/service/metrics"
	"github.com/brojonat/whalealert/service/query"
	"github.com/brojonat/whalealert/service/server"
	"github.com/brojonat/whalealert/service/status"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// The poller's rows are only visible through a shared database.
	var engine *query.Engine
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		database := db.NewPostgresDB(dbPool, db.WithPostgresMetrics(metricsCollector))
		logger.Info("connected to database")

		store := db.NewStore(database, db.WithLogger(logger), db.WithMetrics(metricsCollector))
		engine = query.NewEngine(store,
			query.WithLogger(logger),
			query.WithMetrics(metricsCollector),
		)
	} else {
		logger.Error("DATABASE_URL not set, transaction queries are disabled")
	}

	var ssePublisher *server.SSEPublisher
	if cfg.NATSURL != "" {
		p, err := server.NewSSEPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create SSE publisher", "error", err)
			os.Exit(1)
		}
		ssePublisher = p
	}

	httpServer := server.New(cfg.ServerAddr, cfg, engine, status.NewFileStore(cfg.StatusFile),
		ssePublisher, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"status_file", cfg.StatusFile,
		"nats_url", cfg.NATSURL,
		"cache_ttl", cfg.CacheTTL,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
