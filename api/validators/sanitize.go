package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, drops control characters, collapses internal
// whitespace runs to one space, and cuts the result to maxLen runes.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	pendingSpace := false
	runes := 0
	for _, r := range strings.TrimSpace(input) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if pendingSpace && b.Len() > 0 {
			if maxLen > 0 && runes >= maxLen {
				break
			}
			b.WriteByte(' ')
			runes++
		}
		pendingSpace = false
		if maxLen > 0 && runes >= maxLen {
			break
		}
		b.WriteRune(r)
		runes++
	}
	return strings.TrimSpace(b.String())
}
