package signal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sme-labs/sme-go/internal/routing"
)

// openTestStore opens a store backed by a temp file and closes it when the
// test finishes.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "signal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// testEvent returns a valid event for userID with the given drift score.
func testEvent(userID string, drift float64) Event {
	return Event{
		UserID:        userID,
		UserQuery:     "how is my drift",
		SignalType:    "relational",
		EmotionalTone: 0.2,
		DriftScore:    drift,
		EscalateFlag:  Escalates(drift),
		SelectedAgent: routing.AgentOria,
		Reason:        "Signal type 'relational'",
	}
}

// TestInsertAndListRecent verifies the newest-first contract: after two
// inserts, ListRecent(1) returns exactly the later one.
func TestInsertAndListRecent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.Insert(ctx, testEvent("u1", 0.1))
	if err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	id2, err := s.Insert(ctx, testEvent("u1", 0.2))
	if err != nil {
		t.Fatalf("insert 2: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("IDs must increase: %d then %d", id1, id2)
	}

	events, err := s.ListRecent(ctx, 1)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID != id2 {
		t.Errorf("expected the most recent event %d, got %d", id2, events[0].ID)
	}
	if events[0].DriftScore != 0.2 {
		t.Errorf("drift_score: got %v", events[0].DriftScore)
	}
}

// TestListByUser verifies per-user filtering and ordering.
func TestListByUser(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for _, userID := range []string{"alice", "bob", "alice", "alice"} {
		if _, err := s.Insert(ctx, testEvent(userID, 0.3)); err != nil {
			t.Fatalf("insert for %s: %v", userID, err)
		}
	}

	events, err := s.ListByUser(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events for alice, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].ID > events[i-1].ID {
			t.Errorf("events not newest-first: %d before %d", events[i-1].ID, events[i].ID)
		}
	}

	limited, err := s.ListByUser(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("list by user limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit not honored: got %d events", len(limited))
	}
}

// TestInsert_TimestampAndEscalate verifies the insert-time timestamp stamp
// and that the escalate flag round-trips consistently with the drift score.
func TestInsert_TimestampAndEscalate(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	ctx := context.Background()

	if _, err := s.Insert(ctx, testEvent("u1", 0.9)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Insert(ctx, testEvent("u1", 0.5)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	events, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	// Newest first: events[0] has drift 0.5, events[1] has drift 0.9.
	if events[0].EscalateFlag {
		t.Error("drift 0.5 must not escalate")
	}
	if !events[1].EscalateFlag {
		t.Error("drift 0.9 must escalate")
	}
	for _, ev := range events {
		if ev.Timestamp != "2025-06-01T12:00:00Z" {
			t.Errorf("timestamp: got %q", ev.Timestamp)
		}
		if ev.EscalateFlag != Escalates(ev.DriftScore) {
			t.Errorf("escalate_flag inconsistent with drift %v", ev.DriftScore)
		}
	}
}

// TestInsert_PayloadRoundTrip verifies the free-form JSON payload and the
// optional text fields survive storage.
func TestInsert_PayloadRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	ev := testEvent("u1", 0.1)
	ev.Payload = json.RawMessage(`{"hrv":42.5,"source":"watch"}`)
	ev.RelationshipContext = "weekly check-in"
	ev.DiagnosticNotes = "baseline session"

	if _, err := s.Insert(ctx, ev); err != nil {
		t.Fatalf("insert: %v", err)
	}

	events, err := s.ListRecent(ctx, 1)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	got := events[0]

	var payload map[string]any
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload did not round-trip: %v", err)
	}
	if payload["source"] != "watch" {
		t.Errorf("payload content: %v", payload)
	}
	if got.RelationshipContext != "weekly check-in" || got.DiagnosticNotes != "baseline session" {
		t.Errorf("optional fields: %+v", got)
	}

	// Absent optional fields stay empty on read.
	if _, err := s.Insert(ctx, testEvent("u2", 0.1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	events, err = s.ListByUser(ctx, "u2", 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if events[0].Payload != nil || events[0].RelationshipContext != "" {
		t.Errorf("expected empty optionals, got %+v", events[0])
	}
}

// TestSchema_RequiredColumnsNotNullable verifies the scoring columns reject
// NULL at the schema level, matching what Insert always writes.
func TestSchema_RequiredColumnsNotNullable(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	for _, column := range []string{"signal_type", "emotional_tone", "drift_score", "reason"} {
		q := `
INSERT INTO events (
    timestamp, user_id, user_query, signal_type, emotional_tone, drift_score,
    escalate_flag, selected_agent, reason
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		args := map[string]any{
			"signal_type":    "relational",
			"emotional_tone": 0.2,
			"drift_score":    0.3,
			"reason":         "Signal type 'relational'",
		}
		args[column] = nil
		if _, err := s.db.Exec(q,
			"2025-06-01T12:00:00Z", "u1", "how is my drift",
			args["signal_type"], args["emotional_tone"], args["drift_score"],
			0, "Oria", args["reason"],
		); err == nil {
			t.Errorf("NULL %s accepted, want constraint violation", column)
		}
	}
}

// TestOpen_Reopen verifies the schema migration is idempotent and data
// survives a close/reopen cycle.
func TestOpen_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "signal.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Insert(ctx, testEvent("u1", 0.4)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	events, err := s2.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after reopen, got %d", len(events))
	}
}

// TestOpen_NewerSchemaRejected verifies a database from a future version is
// refused rather than written to.
func TestOpen_NewerSchemaRejected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "signal.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE schema_meta SET version = ?`, schemaVersion+1); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected error opening a newer-schema database")
	}
}

// TestEscalates verifies the strict escalation threshold.
func TestEscalates(t *testing.T) {
	t.Parallel()

	if Escalates(0.5) {
		t.Error("0.5 must not escalate")
	}
	if !Escalates(0.50001) {
		t.Error("0.50001 must escalate")
	}
	if Escalates(0.0) {
		t.Error("0.0 must not escalate")
	}
	if !Escalates(1.0) {
		t.Error("1.0 must escalate")
	}
}
