// Package sanitize normalizes raw voice transcripts and decides whether
// they carry enough content to be worth a completion call.
package sanitize

import (
	"regexp"
	"strings"
)

// Patterns for transcript cleanup. Transcription engines emit filler
// tokens and stray symbols that waste prompt space and confuse the
// model; everything outside plain words and basic punctuation goes.
var (
	fillerWords = regexp.MustCompile(`\b(uh|uhm|umm|hmm|er|like|you know|ok)\b`)
	disallowed  = regexp.MustCompile(`[^\w\s.,!?'"]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Clean normalizes a raw transcript: lowercase, filler words removed,
// punctuation restricted to . , ! ? ' ", whitespace collapsed. Clean is
// idempotent; an empty input returns an empty string.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ToLower(raw)
	s = fillerWords.ReplaceAllString(s, "")
	s = disallowed.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Words splits cleaned text on whitespace, discarding empty tokens.
func Words(cleaned string) []string {
	return strings.Fields(cleaned)
}
