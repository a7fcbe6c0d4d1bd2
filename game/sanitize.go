package game

import (
	"regexp"
	"strings"
)

const (
	maxTextLen     = 100
	maxUsernameLen = 20
)

var (
	htmlTagPattern      = regexp.MustCompile(`<[^>]*>`)
	jsProtocolPattern   = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerPattern = regexp.MustCompile(`(?i)on\w+=`)
	usernamePattern     = regexp.MustCompile(`[^a-zA-Z0-9_ ]`)
)

// SanitizeText cleans chat messages and chosen words. It never fails;
// hostile input degrades to an empty string.
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)
	text = truncate(text, maxTextLen)
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = jsProtocolPattern.ReplaceAllString(text, "")
	text = eventHandlerPattern.ReplaceAllString(text, "")
	return text
}

// SanitizeUsername keeps only letters, digits, underscore and space.
// Callers must treat an empty result as an invalid name and reject the action.
func SanitizeUsername(name string) string {
	name = strings.TrimSpace(name)
	name = truncate(name, maxUsernameLen)
	return usernamePattern.ReplaceAllString(name, "")
}

// truncate cuts on rune boundaries so a multibyte character is never split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
