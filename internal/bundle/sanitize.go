package bundle

import "strings"

// Sanitize strips ESC/CSI/OSC/BEL sequences and replaces remaining
// control characters with U+FFFD, so bundle content can be rendered to
// a terminal without letting a malicious trace event rewrite the
// viewer's screen (spec.md §4.5: "Reader MUST NOT render any bundle
// content to a terminal without passing it through a sanitizer").
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case 0x1b: // ESC — covers CSI ("\x1b[...") and OSC ("\x1b]...")
			i = skipEscapeSequence(runes, i)
			continue
		case 0x07: // BEL, also used to terminate OSC sequences
			continue
		case '\n', '\t':
			b.WriteRune(r)
		default:
			if r < 0x20 || r == 0x7f {
				b.WriteRune('�')
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// skipEscapeSequence returns the index of the last rune consumed by the
// escape sequence starting at runes[start] (which holds ESC), so the
// caller's loop can resume just past it.
func skipEscapeSequence(runes []rune, start int) int {
	if start+1 >= len(runes) {
		return start
	}
	switch runes[start+1] {
	case '[': // CSI: ESC '[' params... final-byte in 0x40-0x7e
		i := start + 2
		for i < len(runes) && (runes[i] < 0x40 || runes[i] > 0x7e) {
			i++
		}
		return i
	case ']': // OSC: ESC ']' ... terminated by BEL or ESC '\'
		i := start + 2
		for i < len(runes) {
			if runes[i] == 0x07 {
				return i
			}
			if runes[i] == 0x1b && i+1 < len(runes) && runes[i+1] == '\\' {
				return i + 1
			}
			i++
		}
		return i - 1
	default:
		return start + 1
	}
}
