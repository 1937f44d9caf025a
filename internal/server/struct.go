package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sme-labs/sme-go/internal/engine"
	"github.com/sme-labs/sme-go/internal/memory"
	"github.com/sme-labs/sme-go/internal/notify"
	"github.com/sme-labs/sme-go/internal/routing"
	"github.com/sme-labs/sme-go/internal/scoring"
	"github.com/sme-labs/sme-go/internal/signal"
	"github.com/sme-labs/sme-go/internal/trace"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /ready.
	// If empty, /ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil a private registry is created.
	Registry *prometheus.Registry
	// Store persists signal events. If nil, POST /signal and GET /drift
	// respond 503.
	Store signal.Store
	// Audit receives one entry per routing decision. A failed append fails
	// the originating request.
	Audit routing.AuditSink
	// Traces backs GET /memory_log. If nil the endpoint returns an empty list.
	Traces traceReader
	// Notifier receives escalation handoffs for signals whose drift score
	// crosses the threshold. Defaults to notify.Noop.
	Notifier notify.Notifier
}

// queryEngine is the interface the query handlers call. *engine.Engine
// satisfies it; tests inject a fake.
type queryEngine interface {
	// Query runs the single-agent pipeline.
	Query(ctx context.Context, requestID, query string, k int) (*engine.Result, error)
	// MultiQuery fans out across every enabled agent store.
	MultiQuery(ctx context.Context, requestID, query string, k int) (map[string]*engine.Result, error)
	// Score retrieves and scores without calling the LLM.
	Score(ctx context.Context, query string, k int) ([]memory.Event, float64, scoring.Flag, error)
	// Search retrieves normalized memories without scoring aggregation.
	Search(ctx context.Context, query string, k int) ([]memory.Event, error)
	// Agents lists the configured agent stores.
	Agents() []engine.AgentStore
}

// traceReader is the read side of the trace log. *trace.Log satisfies it.
type traceReader interface {
	// Tail returns up to limit most recent records, oldest first.
	Tail(limit int) ([]trace.Record, error)
}

// Server is the HTTP server that exposes the signal memory engine.
type Server struct {
	// engine handles /query, /multi_query, /score, and /agents.
	engine queryEngine
	// store persists signal events for /signal and /drift.
	store signal.Store
	// audit records routing decisions made by /signal.
	audit routing.AuditSink
	// traces backs /memory_log.
	traces traceReader
	// notifier receives signal escalation handoffs.
	notifier notify.Notifier
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// signalRequest is the JSON body for POST /signal.
type signalRequest struct {
	// UserID identifies the user emitting the signal. Required.
	UserID string `json:"user_id"`
	// UserQuery is the free-text query attached to the signal. Required.
	UserQuery string `json:"user_query"`
	// SignalType is the caller's signal vocabulary value. Required.
	SignalType string `json:"signal_type"`
	// DriftScore is the drift score in [0,1]. Required.
	DriftScore *float64 `json:"drift_score"`
	// EmotionalTone is the tone score in [0,1]. Defaults to 0.0.
	EmotionalTone *float64 `json:"emotional_tone"`
	// AgentID overrides the router's choice when set.
	AgentID string `json:"agent_id,omitempty"`
	// Payload is an optional free-form JSON payload stored verbatim.
	Payload json.RawMessage `json:"payload,omitempty"`
	// RelationshipContext is optional caller-supplied context.
	RelationshipContext string `json:"relationship_context,omitempty"`
	// DiagnosticNotes is optional caller-supplied diagnostic text.
	DiagnosticNotes string `json:"diagnostic_notes,omitempty"`
}

// queryRequest is the JSON body for POST /query, /multi_query, and /score.
type queryRequest struct {
	// Query is the user's question. Required.
	Query string `json:"query"`
	// K is the number of memories to retrieve. Defaults to 3.
	K int `json:"k"`
}

// chunk is one retrieved memory fragment in a query response.
type chunk struct {
	// Content is the fragment text.
	Content string `json:"content"`
	// Score is the similarity score for this fragment.
	Score float64 `json:"score"`
}

// queryResponse is the JSON response for POST /query, and the per-agent
// block in a /multi_query response.
type queryResponse struct {
	// Answer is the LLM's response, or a degraded placeholder.
	Answer string `json:"answer"`
	// Chunks are the retrieved memory fragments backing the answer.
	Chunks []chunk `json:"chunks"`
	// Flag classifies TrustScore: stable, drifting, or concern.
	Flag string `json:"flag"`
	// Suggestion is the action text for Flag.
	Suggestion string `json:"suggestion"`
	// TrustScore is the representative (max) similarity score.
	TrustScore float64 `json:"trust_score"`
}

// multiQueryResponse is the JSON response for POST /multi_query.
type multiQueryResponse struct {
	// Agents maps each agent role to its query result.
	Agents map[string]queryResponse `json:"agents"`
}

// scoreResponse is the JSON response for POST /score.
type scoreResponse struct {
	// TrustScore is the representative (max) similarity score.
	TrustScore float64 `json:"trust_score"`
	// Flag classifies TrustScore.
	Flag string `json:"flag"`
}

// agentStatus is one entry in the GET /agents response.
type agentStatus struct {
	// Role is the agent's name.
	Role string `json:"role"`
	// Enabled reports whether the agent participates in fan-outs.
	Enabled bool `json:"enabled"`
}

// agentsResponse is the JSON response for GET /agents.
type agentsResponse struct {
	// Agents lists every configured agent with its enabled state.
	Agents []agentStatus `json:"agents"`
}
