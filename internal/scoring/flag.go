// Package scoring converts vector-similarity scores into discrete trust
// flags and the suggested action associated with each flag. The thresholds
// are fixed: they are the observed contract of the engine, not tunables.
package scoring

// Flag is the trust classification derived from a similarity score.
type Flag string

const (
	// FlagStable indicates no drift signal; no action required.
	FlagStable Flag = "stable"
	// FlagDrifting indicates a moderate similarity hit worth a check-in.
	FlagDrifting Flag = "drifting"
	// FlagConcern indicates a strong similarity hit that should escalate.
	FlagConcern Flag = "concern"
)

// suggestions maps each flag to its fixed human-readable action.
var suggestions = map[Flag]string{
	FlagStable:   "No action needed.",
	FlagDrifting: "Consider sending a check-in message.",
	FlagConcern:  "Recommend escalation or a one-on-one conversation.",
}

// FlagForScore classifies a similarity score into a trust flag.
// Thresholds are strict: exactly 0.8 is still drifting and exactly 0.5 is
// still stable. Scores outside [0,1] (negative cosine similarity is possible
// with some providers) are classified as-is with no renormalization.
func FlagForScore(score float64) Flag {
	switch {
	case score > 0.8:
		return FlagConcern
	case score > 0.5:
		return FlagDrifting
	default:
		return FlagStable
	}
}

// Suggestion returns the fixed action text for f. Unknown flags return the
// empty string rather than panicking so callers can log raw provider values.
func (f Flag) Suggestion() string {
	return suggestions[f]
}

// String returns the wire representation of the flag.
func (f Flag) String() string { return string(f) }

// TopScore returns the representative score for a set of similarity scores:
// the maximum, or 0.0 when the set is empty. A single highly similar hit is
// enough to escalate even if every other hit scores low.
func TopScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	top := scores[0]
	for _, s := range scores[1:] {
		if s > top {
			top = s
		}
	}
	return top
}
