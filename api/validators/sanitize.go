package validators

import (
	"strings"
	"unicode"
)

// SanitizeString drops control characters, collapses whitespace runs to a
// single space and truncates to maxLen runes. maxLen <= 0 means no limit.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	space := false
	n := 0
	for _, r := range strings.TrimSpace(input) {
		if maxLen > 0 && n >= maxLen {
			break
		}
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
			n++
			if maxLen > 0 && n >= maxLen {
				break
			}
		}
		space = false
		b.WriteRune(r)
		n++
	}
	return b.String()
}
