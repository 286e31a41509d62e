package model

import "unicode/utf8"

// EstimateTokens approximates the token count of text for budgeting
// purposes (chunk sizing, message truncation). Gemini averages roughly
// four characters per token for English prose; exact counts would need a
// tokenizer round-trip, which is not worth an API call here.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// TruncateTokens cuts text down to approximately maxTokens, preserving
// whole runes. Returns the text unchanged when it already fits.
func TruncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if EstimateTokens(text) <= maxTokens {
		return text
	}
	runes := []rune(text)
	cut := maxTokens * 4
	if cut > len(runes) {
		cut = len(runes)
	}
	return string(runes[:cut])
}
