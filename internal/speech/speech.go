// Package speech converts raw model output into text that sounds
// natural when read aloud by a speech synthesizer.
package speech

import (
	"regexp"
	"strings"
)

// Patterns for stripping non-speakable characters. Models occasionally
// emit markdown emphasis or decorative symbols despite prompt
// instructions; the synthesizer would read them out literally.
var nonSpeakable = regexp.MustCompile(`[^\w\s.,!?;:'"\-()]`)

// Speakable strips markdown emphasis markers and any character outside
// the speakable set (word characters, whitespace, and . , ! ? ; : ' " - ( )).
// Pure; safe on empty input.
func Speakable(raw string) string {
	s := strings.ReplaceAll(raw, "**", "")
	s = strings.ReplaceAll(s, "*", "")
	s = nonSpeakable.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
