package tokens

import (
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	t.Parallel()

	if got := Estimate("gpt-4o", ""); got != 0 {
		t.Fatalf("Estimate(empty)=%d, want 0", got)
	}
	// Rounds up: 1..4 bytes are one token.
	if got := Estimate("gpt-4o", "ab"); got != 1 {
		t.Fatalf("Estimate(ab)=%d, want 1", got)
	}
	if got := Estimate("gpt-4o", "abcde"); got != 2 {
		t.Fatalf("Estimate(abcde)=%d, want 2", got)
	}
	// Unknown models use the fallback divisor.
	if got := Estimate("some-local-model", strings.Repeat("x", 400)); got != 100 {
		t.Fatalf("Estimate(unknown, 400 bytes)=%d, want 100", got)
	}
}

func TestBudgetAdmit(t *testing.T) {
	t.Parallel()

	b := Budget{MaxInputTokens: 10000, MaxOutputTokens: 2000}

	// Small code, small prompt: admitted.
	target, ok := b.Admit("gpt-4o", "prompt", "code")
	if !ok {
		t.Fatalf("Admit small: rejected, target=%d", target)
	}
	if target != 501 {
		// 1 code token * 1.2 truncates to 1, plus the fixed 500 reserve.
		t.Fatalf("target=%d, want 501", target)
	}

	// Response reserve alone exceeds the output ceiling.
	big := strings.Repeat("x", 4*2000)
	if _, ok := b.Admit("gpt-4o", "prompt", big); ok {
		t.Fatalf("Admit: code reserve over output ceiling accepted")
	}

	// Prompt crowds out the reserved response.
	hugePrompt := strings.Repeat("p", 4*9800)
	if _, ok := b.Admit("gpt-4o", hugePrompt, "code"); ok {
		t.Fatalf("Admit: oversized prompt accepted")
	}
}
