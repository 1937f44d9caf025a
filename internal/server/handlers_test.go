package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sme-labs/sme-go/internal/engine"
	"github.com/sme-labs/sme-go/internal/logging"
	"github.com/sme-labs/sme-go/internal/memory"
	"github.com/sme-labs/sme-go/internal/notify"
	"github.com/sme-labs/sme-go/internal/provider"
	"github.com/sme-labs/sme-go/internal/routing"
	"github.com/sme-labs/sme-go/internal/scoring"
	"github.com/sme-labs/sme-go/internal/signal"
	"github.com/sme-labs/sme-go/internal/trace"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeEngine is a test double for the queryEngine interface.
type fakeEngine struct {
	// result is returned by Query and by MultiQuery for every agent role.
	result *engine.Result
	// roles are the agent roles MultiQuery answers for and Agents lists.
	roles []string
	// err is returned from Query, MultiQuery, and Score when non-nil.
	err error
}

func (f *fakeEngine) Query(_ context.Context, _, _ string, _ int) (*engine.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeEngine) MultiQuery(_ context.Context, _, _ string, _ int) (map[string]*engine.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]*engine.Result, len(f.roles))
	for _, role := range f.roles {
		out[role] = f.result
	}
	return out, nil
}

func (f *fakeEngine) Score(_ context.Context, _ string, _ int) ([]memory.Event, float64, scoring.Flag, error) {
	if f.err != nil {
		return nil, 0, "", f.err
	}
	return f.result.Events, f.result.TrustScore, f.result.Flag, nil
}

func (f *fakeEngine) Search(_ context.Context, _ string, _ int) ([]memory.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result.Events, nil
}

func (f *fakeEngine) Agents() []engine.AgentStore {
	agents := make([]engine.AgentStore, 0, len(f.roles))
	for _, role := range f.roles {
		agents = append(agents, engine.AgentStore{Role: role, Enabled: true})
	}
	return agents
}

// fakeStore is an in-memory test double for signal.Store.
type fakeStore struct {
	// events accumulates inserted events, oldest first.
	events []signal.Event
	// insertErr is returned from Insert when non-nil.
	insertErr error
	// listErr is returned from the list methods when non-nil.
	listErr error
}

func (f *fakeStore) Insert(_ context.Context, ev signal.Event) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	ev.ID = int64(len(f.events) + 1)
	f.events = append(f.events, ev)
	return ev.ID, nil
}

func (f *fakeStore) ListRecent(_ context.Context, limit int) ([]signal.Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tail(limit, ""), nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID string, limit int) ([]signal.Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tail(limit, userID), nil
}

func (f *fakeStore) Close() error { return nil }

// tail returns up to limit events newest-first, optionally filtered by user.
func (f *fakeStore) tail(limit int, userID string) []signal.Event {
	var out []signal.Event
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if userID != "" && f.events[i].UserID != userID {
			continue
		}
		out = append(out, f.events[i])
	}
	return out
}

// fakeAudit is a test double for routing.AuditSink.
type fakeAudit struct {
	// entries accumulates recorded entries.
	entries []routing.AuditEntry
	// err is returned from Record when non-nil.
	err error
}

func (f *fakeAudit) Record(entry routing.AuditEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

// fakeTraces is a test double for the traceReader interface.
type fakeTraces struct {
	records []trace.Record
	err     error
}

func (f *fakeTraces) Tail(limit int) ([]trace.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.records) {
		return f.records[len(f.records)-limit:], nil
	}
	return f.records, nil
}

// fakeHandoff records escalation handoffs on a channel.
type fakeHandoff struct {
	ch chan notify.Escalation
}

func newFakeHandoff() *fakeHandoff {
	return &fakeHandoff{ch: make(chan notify.Escalation, 4)}
}

func (f *fakeHandoff) Notify(_ context.Context, esc notify.Escalation) error {
	f.ch <- esc
	return nil
}

// newTestServer builds a Server with quiet logging and a fresh registry.
func newTestServer() *Server {
	reg := prometheus.NewRegistry()
	return &Server{
		engine:   &fakeEngine{},
		notifier: notify.Noop{},
		cfg:      &Config{},
		log:      logging.Discard(),
		metrics:  newServerMetrics(reg),
	}
}

// stableResult is a canned engine result used across query handler tests.
func stableResult() *engine.Result {
	return &engine.Result{
		Answer: "you are doing fine",
		Events: []memory.Event{
			{EventID: "e1", Content: "calm morning", Score: 0.4, Flag: scoring.FlagStable},
		},
		Flag:       scoring.FlagStable,
		Suggestion: scoring.FlagStable.Suggestion(),
		TrustScore: 0.4,
	}
}

// postJSON builds a POST request with a JSON body.
func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ---------------------------------------------------------------------------
// POST /signal
// ---------------------------------------------------------------------------

func TestHandleSignal_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `not-json`},
		{"missing user_id", `{"user_query":"q","signal_type":"relational","drift_score":0.1}`},
		{"missing user_query", `{"user_id":"u","signal_type":"relational","drift_score":0.1}`},
		{"missing signal_type", `{"user_id":"u","user_query":"q","drift_score":0.1}`},
		{"missing drift_score", `{"user_id":"u","user_query":"q","signal_type":"relational"}`},
		{"drift out of range", `{"user_id":"u","user_query":"q","signal_type":"relational","drift_score":1.5}`},
		{"tone out of range", `{"user_id":"u","user_query":"q","signal_type":"relational","drift_score":0.1,"emotional_tone":-0.2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer()
			s.store = &fakeStore{}
			w := httptest.NewRecorder()

			s.handleSignal(w, postJSON("/signal", tt.body))

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestHandleSignal_RoutesAndPersists(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	store := &fakeStore{}
	auditSink := &fakeAudit{}
	s.store = store
	s.audit = auditSink

	w := httptest.NewRecorder()
	s.handleSignal(w, postJSON("/signal",
		`{"user_id":"alice","user_query":"weekly sync","signal_type":"relational","drift_score":0.2}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var ev signal.Event
	if err := json.NewDecoder(w.Body).Decode(&ev); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ev.ID != 1 {
		t.Errorf("id: got %d", ev.ID)
	}
	if ev.SelectedAgent != routing.AgentOria {
		t.Errorf("selected_agent: expected Oria, got %q", ev.SelectedAgent)
	}
	if ev.Reason != "Signal type 'relational'" {
		t.Errorf("reason: got %q", ev.Reason)
	}
	if ev.EscalateFlag {
		t.Error("drift 0.2 must not escalate")
	}
	if ev.Timestamp == "" {
		t.Error("timestamp must be set")
	}

	if len(auditSink.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(auditSink.entries))
	}
	if auditSink.entries[0].UserID != "alice" || auditSink.entries[0].SelectedAgent != routing.AgentOria {
		t.Errorf("audit entry: %+v", auditSink.entries[0])
	}
}

// TestHandleSignal_ResponseTimestampMatchesStored verifies the timestamp in
// the 201 body is the one persisted, using a real SQLite store so the stored
// row is the source of truth.
func TestHandleSignal_ResponseTimestampMatchesStored(t *testing.T) {
	t.Parallel()

	store, err := signal.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	s := newTestServer()
	s.store = store

	w := httptest.NewRecorder()
	s.handleSignal(w, postJSON("/signal",
		`{"user_id":"alice","user_query":"weekly sync","signal_type":"relational","drift_score":0.2}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var ev signal.Event
	if err := json.NewDecoder(w.Body).Decode(&ev); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ev.Timestamp == "" {
		t.Fatal("timestamp must be set")
	}

	stored, err := store.ListByUser(t.Context(), "alice", 1)
	if err != nil {
		t.Fatalf("list stored events: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(stored))
	}
	if stored[0].Timestamp != ev.Timestamp {
		t.Errorf("stored timestamp %q differs from response %q", stored[0].Timestamp, ev.Timestamp)
	}
	if stored[0].ID != ev.ID {
		t.Errorf("stored id %d differs from response %d", stored[0].ID, ev.ID)
	}
}

func TestHandleSignal_AgentOverride(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.store = &fakeStore{}

	w := httptest.NewRecorder()
	s.handleSignal(w, postJSON("/signal",
		`{"user_id":"u","user_query":"q","signal_type":"relational","drift_score":0.1,"agent_id":"Axis"}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	var ev signal.Event
	if err := json.NewDecoder(w.Body).Decode(&ev); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ev.SelectedAgent != routing.AgentAxis || ev.Reason != "Agent override" {
		t.Errorf("override not honored: %+v", ev)
	}
}

func TestHandleSignal_PersistFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.store = &fakeStore{insertErr: errors.New("disk full")}

	w := httptest.NewRecorder()
	s.handleSignal(w, postJSON("/signal",
		`{"user_id":"u","user_query":"q","signal_type":"relational","drift_score":0.1}`))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestHandleSignal_AuditFailureFailsRequest(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.store = &fakeStore{}
	s.audit = &fakeAudit{err: errors.New("log volume unwritable")}

	w := httptest.NewRecorder()
	s.handleSignal(w, postJSON("/signal",
		`{"user_id":"u","user_query":"q","signal_type":"relational","drift_score":0.1}`))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestHandleSignal_StoreDisabled(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	w := httptest.NewRecorder()
	s.handleSignal(w, postJSON("/signal",
		`{"user_id":"u","user_query":"q","signal_type":"relational","drift_score":0.1}`))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestHandleSignal_EscalationHandoff(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.store = &fakeStore{}
	handoff := newFakeHandoff()
	s.notifier = handoff

	w := httptest.NewRecorder()
	s.handleSignal(w, postJSON("/signal",
		`{"user_id":"u","user_query":"something is wrong","signal_type":"emotional","drift_score":0.9}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	var ev signal.Event
	if err := json.NewDecoder(w.Body).Decode(&ev); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !ev.EscalateFlag {
		t.Fatal("drift 0.9 must escalate")
	}

	select {
	case esc := <-handoff.ch:
		if esc.Query != "something is wrong" {
			t.Errorf("handoff query: got %q", esc.Query)
		}
		if len(esc.Agents) != 1 || esc.Agents[0] != string(ev.SelectedAgent) {
			t.Errorf("handoff agents: got %v", esc.Agents)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("escalation handoff never fired")
	}
}

// ---------------------------------------------------------------------------
// GET /drift/{user_id}
// ---------------------------------------------------------------------------

// driftRequest builds a GET /drift request with the user_id path value set.
func driftRequest(userID, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/drift/"+userID+query, nil)
	req.SetPathValue("user_id", userID)
	return req
}

func TestHandleDrift_ReturnsUserEvents(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	store := &fakeStore{}
	s.store = store

	for _, userID := range []string{"alice", "bob", "alice"} {
		_, _ = store.Insert(context.Background(), signal.Event{UserID: userID, UserQuery: "q", DriftScore: 0.3})
	}

	w := httptest.NewRecorder()
	s.handleDrift(w, driftRequest("alice", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var events []signal.Event
	if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID < events[1].ID {
		t.Error("events must be newest-first")
	}
}

func TestHandleDrift_LimitBounds(t *testing.T) {
	t.Parallel()

	for _, limit := range []string{"0", "101", "-3", "abc"} {
		s := newTestServer()
		s.store = &fakeStore{}

		w := httptest.NewRecorder()
		s.handleDrift(w, driftRequest("alice", "?limit="+limit))

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit %q: expected 400, got %d", limit, w.Code)
		}
	}
}

func TestHandleDrift_StoreDisabled(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	w := httptest.NewRecorder()
	s.handleDrift(w, driftRequest("alice", ""))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /query, /multi_query, /score
// ---------------------------------------------------------------------------

func TestHandleQuery_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.engine = &fakeEngine{result: stableResult()}

	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/query", `{"query":"how am I doing","k":2}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "you are doing fine" {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Chunks) != 1 || resp.Chunks[0].Content != "calm morning" || resp.Chunks[0].Score != 0.4 {
		t.Errorf("chunks: %+v", resp.Chunks)
	}
	if resp.Flag != "stable" || resp.TrustScore != 0.4 {
		t.Errorf("scoring: %q/%v", resp.Flag, resp.TrustScore)
	}
}

func TestHandleQuery_MissingQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/query", `{"k":3}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleQuery_ProviderErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"rate limited", &provider.Error{Kind: provider.KindRateLimited, Err: errors.New("429")}, http.StatusServiceUnavailable},
		{"timeout", &provider.Error{Kind: provider.KindTimeout, Err: errors.New("deadline")}, http.StatusGatewayTimeout},
		{"unavailable", &provider.Error{Kind: provider.KindUnavailable, Err: errors.New("refused")}, http.StatusBadGateway},
		{"unknown provider failure", &provider.Error{Kind: provider.KindUnknown, Err: errors.New("boom")}, http.StatusInternalServerError},
		{"retrieval failure", errors.New("qdrant unreachable"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer()
			s.engine = &fakeEngine{err: tt.err}

			w := httptest.NewRecorder()
			s.handleQuery(w, postJSON("/query", `{"query":"q"}`))

			if w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestHandleMultiQuery_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.engine = &fakeEngine{result: stableResult(), roles: []string{"axis", "oria"}}

	w := httptest.NewRecorder()
	s.handleMultiQuery(w, postJSON("/multi_query", `{"query":"how am I doing"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp multiQueryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Agents) != 2 {
		t.Fatalf("expected 2 agent blocks, got %d", len(resp.Agents))
	}
	for role, block := range resp.Agents {
		if block.Answer != "you are doing fine" {
			t.Errorf("agent %s: answer %q", role, block.Answer)
		}
	}
}

func TestHandleScore_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.engine = &fakeEngine{result: &engine.Result{Flag: scoring.FlagConcern, TrustScore: 0.93}}

	w := httptest.NewRecorder()
	s.handleScore(w, postJSON("/score", `{"query":"how am I doing"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp scoreResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TrustScore != 0.93 || resp.Flag != "concern" {
		t.Errorf("score response: %+v", resp)
	}
}

// ---------------------------------------------------------------------------
// GET /memory_log and /agents
// ---------------------------------------------------------------------------

func TestHandleMemoryLog_Empty(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	w := httptest.NewRecorder()
	s.handleMemoryLog(w, httptest.NewRequest(http.MethodGet, "/memory_log", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}

func TestHandleMemoryLog_TailsRecords(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.traces = &fakeTraces{records: []trace.Record{
		{RequestID: "r1", Agent: "axis", Flag: "stable"},
		{RequestID: "r2", Agent: "oria", Flag: "concern"},
	}}

	w := httptest.NewRecorder()
	s.handleMemoryLog(w, httptest.NewRequest(http.MethodGet, "/memory_log?limit=1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var recs []trace.Record
	if err := json.NewDecoder(w.Body).Decode(&recs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(recs) != 1 || recs[0].RequestID != "r2" {
		t.Errorf("expected newest record only, got %+v", recs)
	}
}

func TestHandleMemoryLog_BadLimit(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	w := httptest.NewRecorder()
	s.handleMemoryLog(w, httptest.NewRequest(http.MethodGet, "/memory_log?limit=zero", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /memory/search
// ---------------------------------------------------------------------------

func TestHandleSearch_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.engine = &fakeEngine{result: stableResult()}

	w := httptest.NewRecorder()
	s.handleSearch(w, httptest.NewRequest(http.MethodGet, "/memory/search?q=calm+morning&top_k=5", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var events []memory.Event
	if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 match, got %d", len(events))
	}
	if events[0].EventID != "e1" || events[0].Content != "calm morning" {
		t.Errorf("match: %+v", events[0])
	}
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	w := httptest.NewRecorder()
	s.handleSearch(w, httptest.NewRequest(http.MethodGet, "/memory/search", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleSearch_TopKBounds(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"0", "21", "-1", "many"} {
		s := newTestServer()
		w := httptest.NewRecorder()
		s.handleSearch(w, httptest.NewRequest(http.MethodGet, "/memory/search?q=x&top_k="+raw, nil))

		if w.Code != http.StatusBadRequest {
			t.Errorf("top_k=%s: expected 400, got %d", raw, w.Code)
		}
	}
}

func TestHandleSearch_EmptyResult(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.engine = &fakeEngine{result: &engine.Result{}}

	w := httptest.NewRecorder()
	s.handleSearch(w, httptest.NewRequest(http.MethodGet, "/memory/search?q=nothing", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}

func TestHandleSearch_RetrievalFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.engine = &fakeEngine{err: errors.New("qdrant unreachable")}

	w := httptest.NewRecorder()
	s.handleSearch(w, httptest.NewRequest(http.MethodGet, "/memory/search?q=x", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

func TestHandleAgents(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.engine = &fakeEngine{roles: []string{"axis", "oria", "sentinel"}}

	w := httptest.NewRecorder()
	s.handleAgents(w, httptest.NewRequest(http.MethodGet, "/agents", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp agentsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Agents) != 3 {
		t.Fatalf("expected 3 agents, got %d", len(resp.Agents))
	}
	if resp.Agents[0].Role != "axis" || !resp.Agents[0].Enabled {
		t.Errorf("first agent: %+v", resp.Agents[0])
	}
}
