package routing

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditEntry is one routing decision as written to the audit log, echoing
// the inputs that produced it.
type AuditEntry struct {
	// Timestamp is the UTC time the decision was logged, ISO-8601.
	Timestamp string `json:"timestamp"`
	// SelectedAgent is the agent the router chose.
	SelectedAgent Agent `json:"selected_agent"`
	// Reason is the router's explanation.
	Reason string `json:"reason"`
	// UserID identifies the user whose signal was routed.
	UserID string `json:"user_id,omitempty"`
	// SignalType echoes the raw signal type from the request.
	SignalType string `json:"signal_type,omitempty"`
	// DriftScore echoes the drift score from the request.
	DriftScore float64 `json:"drift_score"`
}

// AuditSink records routing decisions. Implementations may fail; the caller
// decides whether that failure is fatal to the surrounding request.
type AuditSink interface {
	// Record appends one decision entry to the sink.
	Record(entry AuditEntry) error
}

// AuditLog is an AuditSink backed by a newline-delimited JSON file. Entries
// are appended one JSON object per line. Safe for concurrent use.
type AuditLog struct {
	// mu serializes appends so concurrent requests never interleave lines.
	mu sync.Mutex
	// path is the JSONL file the log appends to.
	path string
	// now returns the current time; overridden in tests.
	now func() time.Time
}

// NewAuditLog constructs an AuditLog appending to the file at path.
// The file is created on first append.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path, now: time.Now}
}

// Record appends entry to the log file, stamping it with the current UTC
// time when the entry carries none.
func (l *AuditLog) Record(entry AuditEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = l.now().UTC().Format(time.RFC3339Nano)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("routing: marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("routing: open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("routing: append audit entry: %w", err)
	}
	return nil
}
