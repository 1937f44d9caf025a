// Package budget provides token budget estimation and context trimming for
// the query engine. Because the engine supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English text.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit small-context models while leaving room
	// for the answer. Override via config.
	DefaultMaxContextTokens = 3000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimContext drops context chunks from the tail until the total estimated
// token count of base + chunks fits within maxTokens. Chunks arrive ordered
// most-similar-first from retrieval, so the least relevant are dropped first.
//
// Returns the trimmed chunk slice. If even zero chunks exceed the budget the
// empty slice is returned; the base prompt is never trimmed here.
func TrimContext(base string, chunks []string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}

	baseTokens := Estimate(base)
	for len(chunks) > 0 {
		total := baseTokens
		for _, c := range chunks {
			total += Estimate(c)
		}
		if total <= maxTokens {
			break
		}
		chunks = chunks[:len(chunks)-1]
	}
	return chunks
}
