package token

// CharsPerToken is the average characters-per-token ratio used for
// budgeting. Exact tokenization is model-specific; this heuristic is
// good enough for soft prompt budgets, not for billing.
const CharsPerToken = 4

// Estimate approximates how many tokens a string will consume,
// rounding up. Empty input costs nothing.
func Estimate(s string) int {
	n := len(s)
	if n == 0 {
		return 0
	}
	return (n + CharsPerToken - 1) / CharsPerToken
}
