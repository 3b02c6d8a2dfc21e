package llmclient

import "strings"

// EstimateTokens gives a rough token count for providers that report none.
// It counts whitespace-delimited words and falls back to a character-based
// heuristic.
func EstimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	if words := strings.Fields(text); len(words) > 0 {
		return len(words)
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
