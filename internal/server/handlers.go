package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sme-labs/sme-go/internal/engine"
	"github.com/sme-labs/sme-go/internal/memory"
	"github.com/sme-labs/sme-go/internal/notify"
	"github.com/sme-labs/sme-go/internal/provider"
	"github.com/sme-labs/sme-go/internal/routing"
	"github.com/sme-labs/sme-go/internal/signal"
	"github.com/sme-labs/sme-go/internal/trace"
)

// defaultTopK is the number of memories retrieved when the request omits k.
const defaultTopK = 3

// escalateTimeout bounds the background escalation handoff for a signal.
const escalateTimeout = 5 * time.Second

// handleSignal handles POST /signal: validate, route, persist, audit, and
// hand off escalations in the background. A failed audit append fails the
// request; a failed handoff never does.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		s.httpError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.UserQuery == "" {
		s.httpError(w, http.StatusBadRequest, "user_query is required")
		return
	}
	if req.SignalType == "" {
		s.httpError(w, http.StatusBadRequest, "signal_type is required")
		return
	}
	if req.DriftScore == nil {
		s.httpError(w, http.StatusBadRequest, "drift_score is required")
		return
	}
	drift := *req.DriftScore
	if drift < 0 || drift > 1 {
		s.httpError(w, http.StatusBadRequest, "drift_score must be in [0,1]")
		return
	}
	tone := 0.0
	if req.EmotionalTone != nil {
		tone = *req.EmotionalTone
	}
	if tone < 0 || tone > 1 {
		s.httpError(w, http.StatusBadRequest, "emotional_tone must be in [0,1]")
		return
	}
	if s.store == nil {
		s.httpError(w, http.StatusServiceUnavailable, "signal store disabled")
		return
	}

	var selected routing.Agent
	var reason string
	if req.AgentID != "" {
		selected = routing.Agent(req.AgentID)
		reason = "Agent override"
	} else {
		decision := routing.Route(req.UserQuery, tone, req.SignalType, drift)
		selected = decision.SelectedAgent
		reason = decision.Reason
	}

	ev := signal.Event{
		Timestamp:           time.Now().UTC().Format(time.RFC3339Nano),
		UserID:              req.UserID,
		UserQuery:           req.UserQuery,
		SignalType:          req.SignalType,
		EmotionalTone:       tone,
		DriftScore:          drift,
		EscalateFlag:        signal.Escalates(drift),
		SelectedAgent:       selected,
		Reason:              reason,
		Payload:             req.Payload,
		RelationshipContext: req.RelationshipContext,
		DiagnosticNotes:     req.DiagnosticNotes,
	}

	log := requestLog(r)

	id, err := s.store.Insert(r.Context(), ev)
	if err != nil {
		log.Error("signal persist failed", "error", err)
		s.httpError(w, http.StatusInternalServerError, "failed to persist signal")
		return
	}
	ev.ID = id

	if s.audit != nil {
		entry := routing.AuditEntry{
			SelectedAgent: selected,
			Reason:        reason,
			UserID:        req.UserID,
			SignalType:    req.SignalType,
			DriftScore:    drift,
		}
		if err := s.audit.Record(entry); err != nil {
			log.Error("routing audit append failed", "error", err)
			s.httpError(w, http.StatusInternalServerError, "failed to record routing decision")
			return
		}
	}

	s.metrics.signalsRouted.WithLabelValues(string(selected)).Inc()

	if ev.EscalateFlag {
		s.metrics.escalationsTotal.Inc()
		go s.escalateSignal(ev)
	}

	s.writeJSON(w, http.StatusCreated, ev)
}

// escalateSignal fires the human-in-the-loop handoff for an escalated signal.
// Runs in its own goroutine with a fresh context so request completion never
// cancels it; failures are logged and swallowed.
func (s *Server) escalateSignal(ev signal.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), escalateTimeout)
	defer cancel()

	esc := notify.Escalation{Query: ev.UserQuery, Agents: []string{string(ev.SelectedAgent)}}
	if err := s.notifier.Notify(ctx, esc); err != nil {
		s.log.Warn("escalation handoff failed", "user_id", ev.UserID, "error", err)
	}
}

// handleDrift handles GET /drift/{user_id}: up to limit most recent events
// for one user, newest first.
func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		s.httpError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			s.httpError(w, http.StatusBadRequest, "limit must be an integer in [1,100]")
			return
		}
		limit = n
	}

	if s.store == nil {
		s.httpError(w, http.StatusServiceUnavailable, "signal store disabled")
		return
	}

	events, err := s.store.ListByUser(r.Context(), userID, limit)
	if err != nil {
		requestLog(r).Error("drift query failed", "user_id", userID, "error", err)
		s.httpError(w, http.StatusInternalServerError, "failed to read drift history")
		return
	}
	if events == nil {
		events = []signal.Event{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// handleQuery handles POST /query: single-agent retrieve, score, answer.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	res, err := s.engine.Query(r.Context(), requestID(r), req.Query, req.K)
	if err != nil {
		s.engineError(w, r, err)
		return
	}

	resp := toQueryResponse(res)
	s.metrics.trustFlags.WithLabelValues(resp.Flag).Inc()
	s.writeJSON(w, http.StatusOK, resp)
}

// handleMultiQuery handles POST /multi_query: fan out across every enabled
// agent store and return one result block per agent.
func (s *Server) handleMultiQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	results, err := s.engine.MultiQuery(r.Context(), requestID(r), req.Query, req.K)
	if err != nil {
		s.engineError(w, r, err)
		return
	}

	resp := multiQueryResponse{Agents: make(map[string]queryResponse, len(results))}
	for role, res := range results {
		block := toQueryResponse(res)
		resp.Agents[role] = block
		s.metrics.trustFlags.WithLabelValues(block.Flag).Inc()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleScore handles POST /score: retrieve and score without an LLM call.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	_, top, flag, err := s.engine.Score(r.Context(), req.Query, req.K)
	if err != nil {
		s.engineError(w, r, err)
		return
	}

	s.metrics.trustFlags.WithLabelValues(flag.String()).Inc()
	s.writeJSON(w, http.StatusOK, scoreResponse{TrustScore: top, Flag: flag.String()})
}

// maxSearchTopK bounds the top_k query parameter on GET /memory/search.
const maxSearchTopK = 20

// handleSearch handles GET /memory/search: retrieve the memories matching q
// and return them directly, without an LLM call or trust aggregation.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.httpError(w, http.StatusBadRequest, "q is required")
		return
	}

	topK := defaultTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSearchTopK {
			s.httpError(w, http.StatusBadRequest, "top_k must be an integer in [1,20]")
			return
		}
		topK = n
	}

	events, err := s.engine.Search(r.Context(), query, topK)
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	if events == nil {
		events = []memory.Event{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// handleMemoryLog handles GET /memory_log: tail the decision trace log.
// A missing log file is an empty list, not an error.
func (s *Server) handleMemoryLog(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.httpError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records := []trace.Record{}
	if s.traces != nil {
		recs, err := s.traces.Tail(limit)
		if err != nil {
			requestLog(r).Error("trace tail failed", "error", err)
			s.httpError(w, http.StatusInternalServerError, "failed to read trace log")
			return
		}
		if recs != nil {
			records = recs
		}
	}
	s.writeJSON(w, http.StatusOK, records)
}

// handleAgents handles GET /agents: every configured agent with its
// enabled state.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.engine.Agents()
	resp := agentsResponse{Agents: make([]agentStatus, 0, len(agents))}
	for _, a := range agents {
		resp.Agents = append(resp.Agents, agentStatus{Role: a.Role, Enabled: a.Enabled})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// decodeQuery decodes and validates the shared query request body. On
// failure it writes the error response and returns ok=false.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Query == "" {
		s.httpError(w, http.StatusBadRequest, "query is required")
		return req, false
	}
	if req.K <= 0 {
		req.K = defaultTopK
	}
	return req, true
}

// engineError maps an engine failure to a stable status code. Provider
// failures keep their classification; everything else is treated as an
// upstream (vector search) failure.
func (s *Server) engineError(w http.ResponseWriter, r *http.Request, err error) {
	requestLog(r).Error("engine error", "error", err)

	status := http.StatusBadGateway
	var perr *provider.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case provider.KindRateLimited:
			status = http.StatusServiceUnavailable
		case provider.KindTimeout:
			status = http.StatusGatewayTimeout
		case provider.KindUnavailable:
			status = http.StatusBadGateway
		default:
			status = http.StatusInternalServerError
		}
	}
	s.httpError(w, status, err.Error())
}

// toQueryResponse converts an engine result to its wire shape.
func toQueryResponse(res *engine.Result) queryResponse {
	chunks := make([]chunk, 0, len(res.Events))
	for _, ev := range res.Events {
		chunks = append(chunks, chunk{Content: ev.Content, Score: ev.Score})
	}
	return queryResponse{
		Answer:     res.Answer,
		Chunks:     chunks,
		Flag:       res.Flag.String(),
		Suggestion: res.Suggestion,
		TrustScore: res.TrustScore,
	}
}
