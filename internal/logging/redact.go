package logging

import "strings"

const visibleTokenChars = 6

// MaskToken hides a credential for logging. Only the last six characters
// survive; shorter tokens are masked entirely. Surrounding whitespace is
// ignored.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return "(none)"
	}
	runes := []rune(token)
	if len(runes) <= visibleTokenChars {
		return strings.Repeat("*", len(runes))
	}
	return "***…" + string(runes[len(runes)-visibleTokenChars:])
}
