package matching

import (
	"strings"
	"unicode"
)

// Normalize lower-cases s, turns every rune that is not a letter, digit or
// whitespace into a space, collapses whitespace runs and trims the result.
// The output is only used for comparison and is never shown to callers.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	lowered := strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(lowered))

	pendingSpace := false
	for _, r := range lowered {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			// punctuation, symbols and whitespace all become a separator
			pendingSpace = true
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}

	return b.String()
}
