// Package routing implements the signal router: the rule-based classifier
// that decides which named agent handles an incoming signal based on its
// emotional tone, drift score, and signal type.
//
// Route is a pure function. Inputs arrive loosely typed from the HTTP
// boundary (strings, nulls, out-of-range numbers) and are validated
// defensively: every malformed input degrades to the Selah fallback agent
// with a distinguishing reason, never an error, so the caller always has a
// loggable decision.
package routing

import (
	"fmt"
	"strconv"
	"strings"
)

// Agent is a named downstream handler selected by the router.
type Agent string

const (
	// AgentAxis handles high-emotional-tone signals.
	AgentAxis Agent = "Axis"
	// AgentOria handles biometric and relational signals.
	AgentOria Agent = "Oria"
	// AgentM handles drift and compliance signals.
	AgentM Agent = "M"
	// AgentSelah is the fallback agent for everything else, including
	// signals that fail validation.
	AgentSelah Agent = "Selah"
)

// Decision is the router's output: the chosen agent and why.
type Decision struct {
	// SelectedAgent is the agent that should handle the signal.
	SelectedAgent Agent `json:"selected_agent"`
	// Reason is the human-readable explanation for the choice.
	Reason string `json:"reason"`
}

// Route decides which agent should handle the signal described by
// emotionalTone, signalType, and driftScore. The query text is carried for
// audit purposes only and does not influence the decision.
//
// Validation happens in a fixed order before any routing rule fires:
//
//  1. tone and drift must coerce to float (else "Invalid score input")
//  2. tone, then drift, must lie in [0,1] (else "<field> out of range")
//  3. signalType must be a string (else "Invalid signal type")
//
// Routing rules then apply in priority order, first match wins. Thresholds
// are strict: tone exactly 0.7 and drift exactly 0.5 fall through.
func Route(query string, emotionalTone, signalType, driftScore any) Decision {
	tone, okTone := coerceFloat(emotionalTone)
	drift, okDrift := coerceFloat(driftScore)
	if !okTone || !okDrift {
		return Decision{SelectedAgent: AgentSelah, Reason: "Invalid score input"}
	}

	if tone < 0.0 || tone > 1.0 {
		return Decision{SelectedAgent: AgentSelah, Reason: "Emotional tone out of range"}
	}
	if drift < 0.0 || drift > 1.0 {
		return Decision{SelectedAgent: AgentSelah, Reason: "Drift score out of range"}
	}

	raw, ok := signalType.(string)
	if !ok {
		return Decision{SelectedAgent: AgentSelah, Reason: "Invalid signal type"}
	}
	signal := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case tone > 0.7:
		return Decision{SelectedAgent: AgentAxis, Reason: "High emotional tone"}
	case drift > 0.5:
		return Decision{SelectedAgent: AgentM, Reason: "High drift score"}
	case signal == "compliance":
		return Decision{SelectedAgent: AgentM, Reason: "Compliance signal"}
	case signal == "biometric" || signal == "relational":
		return Decision{SelectedAgent: AgentOria, Reason: fmt.Sprintf("Signal type '%s'", signal)}
	default:
		return Decision{SelectedAgent: AgentSelah, Reason: "Fallback routing"}
	}
}

// coerceFloat converts the loosely typed values the boundary hands us into
// a float64. Numeric strings count as numbers; nil and everything else fail.
func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
