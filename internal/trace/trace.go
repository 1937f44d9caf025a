// Package trace maintains the engine's decision trace: an append-only,
// newline-delimited JSON log of every scoring decision made on the query
// path. The tail of the log backs GET /memory_log.
package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// Record is one scoring decision as written to the trace log.
type Record struct {
	// Timestamp is the UTC time of the decision, ISO-8601.
	Timestamp string `json:"timestamp"`
	// RequestID correlates this record with the HTTP request that caused it.
	RequestID string `json:"request_id"`
	// Agent names the agent (or "single-agent") the decision belongs to.
	Agent string `json:"agent"`
	// Query is the user query that was scored.
	Query string `json:"query"`
	// Flag is the trust flag derived from the top score.
	Flag string `json:"flag"`
	// TrustScore is the representative (max) similarity score.
	TrustScore float64 `json:"trust_score"`
}

// Log is an append-only JSONL trace log. Safe for concurrent use.
type Log struct {
	// mu serializes appends so concurrent requests never interleave lines.
	mu sync.Mutex
	// path is the JSONL file backing the log.
	path string
	// now returns the current time; overridden in tests.
	now func() time.Time
}

// New constructs a Log appending to the file at path.
// The file is created on first append.
func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Append writes rec to the log, stamping it with the current UTC time when
// the record carries none.
func (l *Log) Append(rec Record) error {
	if rec.Timestamp == "" {
		rec.Timestamp = l.now().UTC().Format(time.RFC3339Nano)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("trace: marshal record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("trace: open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("trace: append record: %w", err)
	}
	return nil
}

// Tail returns the last limit records in the log, oldest-first. A missing
// log file is an empty log, not an error. Lines that fail to parse are
// skipped; the log is advisory, not authoritative.
func (l *Log) Tail(limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("trace: open log: %w", err)
	}
	defer f.Close()

	// Ring buffer of the last limit records.
	buf := make([]Record, 0, limit)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if len(buf) == limit {
			copy(buf, buf[1:])
			buf = buf[:limit-1]
		}
		buf = append(buf, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("trace: read log: %w", err)
	}
	return buf, nil
}
