// Package text holds small string helpers shared by error paths.
package text

// Truncate cuts s to at most max bytes, marking the cut with "...". It backs
// off to a rune boundary so the result stays valid UTF-8.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
