package wire

import "unicode/utf8"

// CompleteLen returns the length of p without a trailing incomplete UTF-8
// sequence. Invalid bytes count as complete.
func CompleteLen(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if utf8.FullRune(p[i:]) {
			return len(p)
		}
		return i
	}
	return len(p)
}
