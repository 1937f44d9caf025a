package routing

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// readEntries parses every JSONL line in the audit file at path.
func readEntries(t *testing.T, path string) []AuditEntry {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var entries []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal line %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

// TestAuditLog_RecordAppends verifies entries append one JSON object per line
// with a UTC timestamp stamped on write.
func TestAuditLog_RecordAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "router_log.jsonl")
	log := NewAuditLog(path)
	log.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}

	first := AuditEntry{SelectedAgent: AgentAxis, Reason: "High emotional tone", UserID: "u1", SignalType: "emotional", DriftScore: 0.2}
	second := AuditEntry{SelectedAgent: AgentM, Reason: "High drift score", UserID: "u2", SignalType: "relational", DriftScore: 0.8}

	if err := log.Record(first); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := log.Record(second); err != nil {
		t.Fatalf("second record: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].SelectedAgent != AgentAxis || entries[1].SelectedAgent != AgentM {
		t.Errorf("entries out of order: %+v", entries)
	}
	if entries[0].Timestamp != "2025-06-01T12:00:00Z" {
		t.Errorf("timestamp: got %q", entries[0].Timestamp)
	}
	if entries[1].DriftScore != 0.8 {
		t.Errorf("drift_score: got %v", entries[1].DriftScore)
	}
}

// TestAuditLog_ConcurrentRecords verifies concurrent appends never interleave
// or drop lines.
func TestAuditLog_ConcurrentRecords(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "router_log.jsonl")
	log := NewAuditLog(path)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Record(AuditEntry{SelectedAgent: AgentSelah, Reason: "Fallback routing"})
		}()
	}
	wg.Wait()

	entries := readEntries(t, path)
	if len(entries) != n {
		t.Fatalf("expected %d entries, got %d", n, len(entries))
	}
}

// TestAuditLog_UnwritablePath verifies the error surfaces to the caller.
func TestAuditLog_UnwritablePath(t *testing.T) {
	t.Parallel()

	log := NewAuditLog(filepath.Join(t.TempDir(), "missing", "router_log.jsonl"))
	if err := log.Record(AuditEntry{SelectedAgent: AgentSelah}); err == nil {
		t.Fatal("expected error for unwritable path")
	}
}
