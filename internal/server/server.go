// Package server implements the HTTP server that exposes the signal memory
// engine: signal routing and persistence, drift history, query/score
// endpoints, the decision trace log, and operational probes.
// The server is started by the `sme serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sme-labs/sme-go/internal/logging"
	"github.com/sme-labs/sme-go/internal/notify"
)

// New constructs a Server from the provided engine and config.
func New(eng queryEngine, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full LLM round trip on /multi_query.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Noop{}
	}

	s := &Server{
		engine:   eng,
		store:    cfg.Store,
		audit:    cfg.Audit,
		traces:   cfg.Traces,
		notifier: cfg.Notifier,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.Registry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: SME_API_KEY not set, authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()

	// Protected API routes: auth, then per-IP rate limiting, then metrics.
	protected := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, authMiddleware(cfg.APIKey, rl.middleware(s.instrument(name, h))))
	}
	protected("POST /signal", "signal", s.handleSignal)
	protected("GET /drift/{user_id}", "drift", s.handleDrift)
	protected("POST /query", "query", s.handleQuery)
	protected("POST /multi_query", "multi_query", s.handleMultiQuery)
	protected("POST /score", "score", s.handleScore)
	protected("GET /memory/search", "memory_search", s.handleSearch)
	protected("GET /memory_log", "memory_log", s.handleMemoryLog)
	protected("GET /agents", "agents", s.handleAgents)

	// Operational probes stay open so orchestrators can reach them.
	mux.Handle("GET /health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /ready", s.instrument("ready", s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("sme server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// writeJSON encodes v as the response body with the given status code.
// Encoding failures are logged but cannot be reported to the client since
// the header has already been written.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode error", "error", err)
	}
}

// errorResponse is the JSON body for all error responses.
type errorResponse struct {
	// Detail is the human-readable failure reason.
	Detail string `json:"detail"`
}

// httpError writes a JSON error body with the given status code.
func (s *Server) httpError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}
