// Package memory normalizes raw vector-search hits into MemoryEvent records:
// ephemeral, per-query views of retrieved content annotated with a trust flag
// and a deterministic, content-addressed event ID. MemoryEvents are built
// fresh for every query and discarded once the response is assembled; they
// are never persisted or mutated.
package memory

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/sme-labs/sme-go/internal/scoring"
)

// Hit is one raw similarity result from the vector search provider.
type Hit struct {
	// Content is the retrieved text as stored by the provider.
	Content string
	// Score is the provider's similarity score. Observed range is 0–1 but
	// the provider contract does not strictly guarantee it.
	Score float64
	// Metadata is the provider-stored payload for this hit, if any.
	Metadata map[string]string
}

// Event is a normalized memory event derived from a single Hit.
type Event struct {
	// EventID is a deterministic hash of (content, normalized timestamp).
	EventID string `json:"event_id"`
	// Content is the retrieved text with surrounding whitespace trimmed.
	Content string `json:"content"`
	// Score is the similarity score carried through unchanged.
	Score float64 `json:"score"`
	// Flag is the trust classification of Score.
	Flag scoring.Flag `json:"flag"`
	// Suggestion is the action text associated with Flag.
	Suggestion string `json:"suggestion"`
	// SourceAgent names the agent whose store produced this hit, if known.
	SourceAgent string `json:"source_agent,omitempty"`
	// Timestamp is the hit's metadata timestamp, normalized to ISO-8601
	// when parseable, otherwise passed through raw. Empty if absent.
	Timestamp string `json:"timestamp,omitempty"`
	// Metadata carries the remaining provider metadata keys (timestamp is
	// promoted to the top-level field above). Nil when nothing remains.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// timestampLayouts are the formats NormalizeTimestamp attempts, in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeTimestamp re-renders ts canonically (RFC 3339) when it parses as
// an ISO-8601-like value, and returns it unchanged otherwise. It never fails:
// unparseable timestamps are a lenient, lossy passthrough.
func NormalizeTimestamp(ts string) string {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Format(time.RFC3339Nano)
		}
	}
	return ts
}

// EventID derives the deterministic identifier for a memory event from its
// content and normalized timestamp. Identical inputs always yield the same
// ID; changing either input changes it.
func EventID(content, timestamp string) string {
	sum := md5.Sum([]byte(content + timestamp))
	return hex.EncodeToString(sum[:])
}

// MapToMemory converts raw provider hits into normalized events. The output
// always has the same length as the input: hits with empty or whitespace-only
// content become valid empty-content events rather than being dropped.
// sourceAgent is attached to every event when non-empty.
func MapToMemory(hits []Hit, sourceAgent string) []Event {
	events := make([]Event, 0, len(hits))
	for _, h := range hits {
		var ts string
		if raw, ok := h.Metadata["timestamp"]; ok {
			ts = NormalizeTimestamp(raw)
		}

		flag := scoring.FlagForScore(h.Score)

		ev := Event{
			EventID:     EventID(h.Content, ts),
			Content:     strings.TrimSpace(h.Content),
			Score:       h.Score,
			Flag:        flag,
			Suggestion:  flag.Suggestion(),
			SourceAgent: sourceAgent,
			Timestamp:   ts,
		}

		// Carry the remaining metadata keys; timestamp was promoted above.
		for k, v := range h.Metadata {
			if k == "timestamp" {
				continue
			}
			if ev.Metadata == nil {
				ev.Metadata = make(map[string]string)
			}
			ev.Metadata[k] = v
		}

		events = append(events, ev)
	}
	return events
}

// Scores extracts the raw score of each event, preserving order. It feeds
// scoring.TopScore when computing a query's representative trust score.
func Scores(events []Event) []float64 {
	out := make([]float64, len(events))
	for i, e := range events {
		out[i] = e.Score
	}
	return out
}
