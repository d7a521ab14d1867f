package repocontext

import (
	"strings"
	"unicode/utf8"
)

const (
	// TruncationMarker ends every truncated file.
	TruncationMarker = "\n\n... [truncated]"

	charsPerToken = 4

	// truncationReserve keeps room for the marker inside the token cap.
	truncationReserve = 10
)

// EstimateTokens approximates the token count of text as chars/4, at least 1.
func EstimateTokens(text string) int {
	if n := len(text) / charsPerToken; n > 1 {
		return n
	}
	return 1
}

// truncateToTokens cuts text to roughly maxTokens, preferring a line break
// in the second half of the kept text, and appends TruncationMarker.
func truncateToTokens(text string, maxTokens int) string {
	if EstimateTokens(text) <= maxTokens {
		return text
	}
	maxChars := (maxTokens - truncationReserve) * charsPerToken
	if maxChars <= 0 {
		return strings.TrimPrefix(TruncationMarker, "\n\n")
	}
	cut := text[:maxChars]
	if i := strings.LastIndexByte(cut, '\n'); i > maxChars/2 {
		cut = cut[:i]
	}
	return validPrefix(cut) + TruncationMarker
}

// validPrefix drops a rune split by a byte cut.
func validPrefix(s string) string {
	for i := 0; i < utf8.UTFMax && len(s) > 0 && !utf8.ValidString(s); i++ {
		s = s[:len(s)-1]
	}
	return s
}
