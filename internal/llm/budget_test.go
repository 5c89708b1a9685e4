package llm

import "testing"

func TestComputeBudgetOffLevelUsesFixedMaxTokens(t *testing.T) {
	b := ComputeBudget(200000, 5000, ThinkingOff, true)
	if b.MaxTokens != fixedMaxTokens || b.ThinkingBudget != 0 {
		t.Fatalf("expected fixed budget with no thinking, got %+v", b)
	}
}

func TestComputeBudgetUnsupportedModelUsesFixed(t *testing.T) {
	b := ComputeBudget(200000, 5000, ThinkingHigh, false)
	if b.MaxTokens != fixedMaxTokens || b.ThinkingBudget != 0 {
		t.Fatalf("expected fixed budget when thinking unsupported, got %+v", b)
	}
}

func TestComputeBudgetMediumLevel(t *testing.T) {
	b := ComputeBudget(200000, 10000, ThinkingMedium, true)
	wantMax := int(0.3 * float64(200000-10000))
	if b.MaxTokens != wantMax {
		t.Fatalf("expected maxTokens %d, got %d", wantMax, b.MaxTokens)
	}
	wantThinking := int(float64(wantMax) * 0.5)
	if wantThinking > 10000 {
		wantThinking = 10000
	}
	if b.ThinkingBudget != wantThinking {
		t.Fatalf("expected thinkingBudget %d, got %d", wantThinking, b.ThinkingBudget)
	}
}

func TestComputeBudgetEnforcesMaxTokensFloor(t *testing.T) {
	// A tiny remaining context window still floors maxTokens at 4096.
	b := ComputeBudget(5000, 4000, ThinkingLow, true)
	if b.MaxTokens != 4096 {
		t.Fatalf("expected maxTokens floor of 4096, got %d", b.MaxTokens)
	}
}
