package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brojonat/whalealert/service/config"
	"github.com/brojonat/whalealert/service/db"
	"github.com/brojonat/whalealert/service/lock"
	"github.com/brojonat/whalealert/service/metrics"
	natspkg "github.com/brojonat/whalealert/service/nats"
	"github.com/brojonat/whalealert/service/poller"
	"github.com/brojonat/whalealert/service/status"
	"github.com/brojonat/whalealert/service/whale"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	if err := cfg.ValidateFetch(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting poller",
		"poll_interval", cfg.PollInterval,
		"min_value_usd", cfg.MinValueUSD,
		"history_limit", cfg.HistoryLimit,
		"log_level", cfg.LogLevel,
	)

	// One poller per data directory
	lease, err := lock.AcquireDir(cfg.DataDir)
	if errors.Is(err, lock.ErrHeld) {
		logger.Error("another poller owns the data directory", "data_dir", cfg.DataDir)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to acquire data directory lease", "error", err)
		os.Exit(1)
	}
	defer lease.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	// Partition storage: Postgres when configured, otherwise in memory
	var database db.Database
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

		pg := db.NewPostgresDB(dbPool, db.WithPostgresMetrics(metricsCollector))
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare database schema", "error", err)
			os.Exit(1)
		}
		database = pg
		logger.Info("connected to database")
	} else {
		database = db.NewMemoryDB()
		logger.Warn("DATABASE_URL not set, storing transactions in memory")
	}

	store := db.NewStore(database,
		db.WithLogger(logger),
		db.WithMetrics(metricsCollector),
	)

	tracker, err := status.NewTracker(ctx, status.NewFileStore(cfg.StatusFile), cfg.PollInterval,
		status.WithLogger(logger),
		status.WithMetrics(metricsCollector),
	)
	if err != nil {
		logger.Error("failed to initialize status tracker", "error", err)
		os.Exit(1)
	}
	logger.Info("status tracker ready", "status_file", cfg.StatusFile)

	fetcher := whale.NewClient(
		whale.WithBaseURL(strings.TrimRight(cfg.WhaleAPIURL, "/")),
		whale.WithRetries(cfg.FetchRetries),
		whale.WithTimeout(cfg.FetchTimeout),
		whale.WithRateLimiter(rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.FetchRatePerMinute)), 1)),
		whale.WithLogger(logger),
		whale.WithMetrics(metricsCollector),
	)

	opts := []poller.Option{
		poller.WithLogger(logger),
		poller.WithMetrics(metricsCollector),
	}
	if cfg.NATSURL != "" {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, logger, natspkg.WithMetrics(metricsCollector))
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		opts = append(opts, poller.WithPublisher(natsPublisher))
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	p := poller.New(poller.Config{
		APIKey:       cfg.WhaleAPIKey,
		MinValueUSD:  cfg.MinValueUSD,
		Limit:        cfg.FetchLimit,
		PollInterval: cfg.PollInterval,
		HistoryLimit: cfg.HistoryLimit,
	}, fetcher, store, tracker, opts...)

	logger.Info("poller initialized, all dependencies ready")

	if cfg.TemporalHost != "" {
		if err := runScheduled(ctx, cfg, p, logger); err != nil {
			logger.Error("scheduled poller stopped", "error", err)
			os.Exit(1)
		}
		logger.Info("poller shutdown complete")
		return
	}

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("poller stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("poller shutdown complete")
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
