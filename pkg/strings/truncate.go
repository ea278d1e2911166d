package strings

import (
	"strings"
)

// DefaultMessageMaxLen bounds error and warning text in table cells.
const DefaultMessageMaxLen = 80

// MinTruncateLen is the smallest useful limit: one character plus "...".
const MinTruncateLen = 4

// Truncate collapses whitespace into single spaces and cuts s to maxLen
// runes, ending in "..." when something was cut. Limits below
// MinTruncateLen are raised to it.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// Indent prefixes every non-empty line of s.
func Indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
