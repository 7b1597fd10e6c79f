package review

import "math"

// charsPerToken is a rough ratio for source code. Real tokenizers vary by
// model; rounding up keeps the estimate on the conservative side.
const charsPerToken = 3.5

// EstimateTokens approximates the token cost of text without a tokenizer.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}
