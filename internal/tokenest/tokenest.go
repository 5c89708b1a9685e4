// Package tokenest provides a bilingual heuristic token counter used for
// LLM request budgeting. Precision is irrelevant beyond roughly ±15%; this
// trades exactness for a closed-form estimate with no tokenizer dependency.
package tokenest

import "math"

// Message is the minimal shape tokenest needs to estimate a conversation's
// token footprint without importing the session package (avoids a cycle).
type Message struct {
	Content string
}

// perMessageOverhead accounts for role/metadata tokens the raw text count misses.
const perMessageOverhead = 4

// Estimate returns a heuristic token count for text:
// ceil(1.5*koreanChars + otherChars/4).
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	var korean, other float64
	for _, r := range text {
		if isKorean(r) {
			korean++
		} else {
			other++
		}
	}
	return int(math.Ceil(1.5*korean + other/4))
}

// EstimateMessages sums Estimate over each message's content plus a fixed
// per-message overhead.
func EstimateMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += Estimate(m.Content) + perMessageOverhead
	}
	return total
}

// isKorean reports whether r falls in the Hangul Jamo or Hangul Syllables
// Unicode ranges.
func isKorean(r rune) bool {
	switch {
	case r >= 0x1100 && r <= 0x11FF: // Hangul Jamo
		return true
	case r >= 0xAC00 && r <= 0xD7A3: // Hangul Syllables
		return true
	default:
		return false
	}
}
