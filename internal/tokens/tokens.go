// Package tokens provides token estimation and admission control for model
// prompts. Estimation uses a byte-based divisor heuristic; well-known model
// families get their own divisor, everything else falls back to 4 bytes per
// token.
package tokens

import "strings"

const fallbackBytesPerToken = 4

// bytesPerToken maps a lowercase model-name prefix to its divisor. Code-heavy
// prompts tokenize denser on newer models, hence the slightly lower divisors.
var bytesPerToken = []struct {
	prefix  string
	divisor int
}{
	{"gpt-4o", 4},
	{"gpt-4", 4},
	{"gpt-3.5", 4},
	{"o1", 4},
	{"o3", 4},
	{"claude", 4},
}

// Estimate returns the estimated token count for text under the given model.
// Empty text estimates to zero. The estimate rounds up so short strings never
// count as free.
func Estimate(model, text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	d := divisorFor(model)
	return (n + d - 1) / d
}

func divisorFor(model string) int {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, e := range bytesPerToken {
		if strings.HasPrefix(m, e.prefix) {
			return e.divisor
		}
	}
	return fallbackBytesPerToken
}

// Budget holds the model's input and output token ceilings.
type Budget struct {
	MaxInputTokens  int
	MaxOutputTokens int
}

// Admit decides whether a prompt fits the model's ceilings. The target
// response size is derived from the code being rewritten: codeTokens*1.2+500,
// on the assumption that a rewrite plus its analysis fields is a bit larger
// than the input code. Returns the target response size and whether the call
// may proceed.
func (b Budget) Admit(model, prompt, code string) (int, bool) {
	codeTokens := Estimate(model, code)
	target := codeTokens*12/10 + 500
	if target >= b.MaxOutputTokens {
		return target, false
	}
	promptTokens := Estimate(model, prompt)
	if promptTokens >= b.MaxInputTokens-target {
		return target, false
	}
	return target, true
}
