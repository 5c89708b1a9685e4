package llm

import "math"

// ThinkingLevel selects an extended-thinking budget tier.
type ThinkingLevel string

const (
	ThinkingOff    ThinkingLevel = "off"
	ThinkingLow    ThinkingLevel = "low"
	ThinkingMedium ThinkingLevel = "medium"
	ThinkingHigh   ThinkingLevel = "high"
)

type levelParams struct {
	ratio float64
	cap   int
}

var levels = map[ThinkingLevel]levelParams{
	ThinkingOff:    {0, 0},
	ThinkingLow:    {0.3, 5000},
	ThinkingMedium: {0.5, 10000},
	ThinkingHigh:   {0.7, 20000},
}

const fixedMaxTokens = 8192

// Budget is the resolved max-tokens/thinking-budget pair for a request.
type Budget struct {
	MaxTokens      int
	ThinkingBudget int // 0 means thinking is disabled
}

// ComputeBudget implements the dynamic budgeting formula: given the
// model's context window and the estimated input token count, derive
// maxTokens and (if the level isn't off) a thinking budget. Falls back
// to a fixed 8192 maxTokens with no thinking when supportsThinking is
// false or level is off.
func ComputeBudget(contextWindow, inputTokens int, level ThinkingLevel, supportsThinking bool) Budget {
	if !supportsThinking || level == "" || level == ThinkingOff {
		return Budget{MaxTokens: fixedMaxTokens}
	}

	params, ok := levels[level]
	if !ok {
		return Budget{MaxTokens: fixedMaxTokens}
	}

	maxTokens := int(math.Max(4096, math.Floor(float64(contextWindow-inputTokens)*0.3)))
	thinkingBudget := int(math.Min(
		float64(params.cap),
		math.Min(math.Floor(float64(maxTokens)*params.ratio), float64(maxTokens-1024)),
	))
	if thinkingBudget < 1024 {
		return Budget{MaxTokens: maxTokens}
	}
	return Budget{MaxTokens: maxTokens, ThinkingBudget: thinkingBudget}
}
