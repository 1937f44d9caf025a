// Package signal defines the persisted signal event record and its
// append-only SQLite store. A signal event is one routed user interaction:
// the inputs, the router's decision, and the derived escalation flag.
// Events are immutable once inserted.
package signal

import (
	"encoding/json"

	"github.com/sme-labs/sme-go/internal/routing"
)

// Event is a single routed interaction as persisted in the event store.
type Event struct {
	// ID is assigned by the store on insert; monotonically increasing.
	ID int64 `json:"id"`
	// Timestamp is the UTC creation time, ISO-8601. Immutable once set.
	Timestamp string `json:"timestamp"`
	// UserID identifies the user who emitted the signal.
	UserID string `json:"user_id"`
	// UserQuery is the free-text query attached to the signal.
	UserQuery string `json:"user_query"`
	// SignalType is the caller-supplied signal vocabulary value.
	SignalType string `json:"signal_type"`
	// EmotionalTone is the caller-supplied tone score in [0,1].
	EmotionalTone float64 `json:"emotional_tone"`
	// DriftScore is the caller-supplied drift score in [0,1].
	DriftScore float64 `json:"drift_score"`
	// EscalateFlag is true when DriftScore exceeds 0.5.
	EscalateFlag bool `json:"escalate_flag"`
	// SelectedAgent is the agent override or the router's choice.
	SelectedAgent routing.Agent `json:"selected_agent"`
	// Reason explains how SelectedAgent was chosen.
	Reason string `json:"reason"`
	// Payload is an optional free-form JSON payload from the caller.
	Payload json.RawMessage `json:"payload,omitempty"`
	// RelationshipContext is optional caller-supplied context.
	RelationshipContext string `json:"relationship_context,omitempty"`
	// DiagnosticNotes is optional caller-supplied diagnostic text.
	DiagnosticNotes string `json:"diagnostic_notes,omitempty"`
}

// Escalates reports whether a drift score crosses the escalation threshold.
// The threshold is strict: exactly 0.5 does not escalate.
func Escalates(driftScore float64) bool {
	return driftScore > 0.5
}
