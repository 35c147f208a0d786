// Package utils provides shared utilities for text, math, and logging.
package utils

// Truncate returns the first maxRunes runes of s. Multi-byte characters are
// never split. If maxRunes is 0 or negative, returns s unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || len(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}
