package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/whalealert/service/config"
	"github.com/brojonat/whalealert/service/metrics"
	"github.com/brojonat/whalealert/service/query"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP read API over stored whale transactions.
type Server struct {
	addr         string
	cfg          *config.Config
	engine       *query.Engine
	statuses     StatusSource
	ssePublisher *SSEPublisher
	cache        *cache.Cache
	now          func() time.Time
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The ssePublisher is optional; if nil, streaming endpoints are disabled.
// The metrics is optional; if nil, /metrics is not served.
// A nil engine answers transaction queries with 503.
func New(addr string, cfg *config.Config, engine *query.Engine, statuses StatusSource, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Server{
		addr:         addr,
		cfg:          cfg,
		engine:       engine,
		statuses:     statuses,
		ssePublisher: ssePublisher,
		cache:        cache.New(ttl, 10*time.Minute),
		now:          time.Now,
		metrics:      m,
		logger:       logger,
	}
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	instrument := func(name string, h http.Handler) http.Handler {
		return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
	}

	if s.engine != nil {
		mux.Handle("GET /api/v1/transactions", instrument("/api/v1/transactions",
			handleQueryTransactions(s.engine, s.cache, s.logger)))
	} else {
		mux.Handle("GET /api/v1/transactions", instrument("/api/v1/transactions",
			handleStorageUnavailable()))
		s.logger.Error("transaction storage not configured, transaction queries return 503")
	}
	mux.Handle("GET /api/v1/status", instrument("/api/v1/status",
		handleGetStatus(s.statuses, s.cfg.PollInterval, s.now, s.logger)))

	if s.ssePublisher != nil {
		stream := handleStreamWhales(s.ssePublisher, s.metrics, s.logger)
		mux.Handle("GET /api/v1/stream/transactions/{blockchain}", instrument("/api/v1/stream/transactions/{blockchain}", stream))
		mux.Handle("GET /api/v1/stream/transactions", instrument("/api/v1/stream/transactions", stream))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
