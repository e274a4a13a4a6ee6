package generate

import (
	"unicode/utf8"
)

// Default context window around the cursor, in characters.
const (
	DefaultWindowBefore = 500
	DefaultWindowAfter  = 200
	DefaultCursorMarker = "\n<cursor>\n"
)

// WindowOptions bounds the context window sent to the model.
type WindowOptions struct {
	Before int
	After  int
	Marker string
}

// DefaultWindow returns the default window options.
func DefaultWindow() WindowOptions {
	return WindowOptions{
		Before: DefaultWindowBefore,
		After:  DefaultWindowAfter,
		Marker: DefaultCursorMarker,
	}
}

// Window returns up to opts.Before characters preceding offset, the cursor
// marker, and up to opts.After characters following it. Offsets outside the
// buffer are clamped. The result length does not depend on buffer size.
func Window(buffer string, offset int, opts WindowOptions) string {
	before, after := SplitWindow(buffer, offset, opts)
	return before + opts.Marker + after
}

// SplitWindow returns the two halves of Window without the marker.
func SplitWindow(buffer string, offset int, opts WindowOptions) (before, after string) {
	offset = clampOffset(buffer, offset)
	return lastRunes(buffer[:offset], opts.Before), firstRunes(buffer[offset:], opts.After)
}

// clampOffset bounds offset to the buffer and moves it back to a rune start.
func clampOffset(buffer string, offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(buffer) {
		return len(buffer)
	}
	for offset > 0 && offset < len(buffer) && !utf8.RuneStart(buffer[offset]) {
		offset--
	}
	return offset
}

func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := len(s)
	for count := 0; i > 0 && count < n; count++ {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}

func firstRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for count := 0; i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}
