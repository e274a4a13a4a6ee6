package explain

import (
	"strings"
	"unicode/utf8"

	codelet "github.com/Paranoid-AF/codelet"
)

// DefaultMaxChars bounds a stored explanation.
const DefaultMaxChars = 80

// Marker opens the comment an explanation is inserted into.
const Marker = "//"

// Triggered reports whether the two characters before caret are the marker.
func Triggered(buffer string, caret int) bool {
	caret = clamp(buffer, caret)
	return caret >= len(Marker) && buffer[caret-len(Marker):caret] == Marker
}

// CurrentLine returns the full line containing caret, without its newline.
func CurrentLine(buffer string, caret int) string {
	caret = clamp(buffer, caret)
	start := strings.LastIndexByte(buffer[:caret], '\n') + 1
	end := len(buffer)
	if i := strings.IndexByte(buffer[caret:], '\n'); i >= 0 {
		end = caret + i
	}
	return buffer[start:end]
}

// Shorten collapses whitespace in text to single spaces and truncates it
// to max runes. Non-positive max selects DefaultMaxChars.
func Shorten(text string, max int) string {
	if max <= 0 {
		max = DefaultMaxChars
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return strings.TrimSpace(text[:i])
		}
		n++
	}
	return text
}

// Consume inserts the explanation cached for caret after the last marker
// on the caret's line. The entry is taken atomically, so concurrent calls
// for one caret produce at most one insertion. Blank entries are dropped.
func Consume(cache *Cache, buffer string, caret int) (codelet.Insertion, bool) {
	if caret < 0 || caret > len(buffer) {
		return codelet.Insertion{}, false
	}
	lineStart := strings.LastIndexByte(buffer[:caret], '\n') + 1
	idx := strings.LastIndex(buffer[lineStart:caret], Marker)
	if idx < 0 {
		return codelet.Insertion{}, false
	}

	text, ok := cache.Take(caret)
	if !ok || strings.TrimSpace(text) == "" {
		return codelet.Insertion{}, false
	}

	ins := codelet.Insertion{
		Offset: lineStart + idx + len(Marker),
		Text:   " " + strings.TrimSpace(text),
	}
	ins.CursorOffset = ins.Offset + len(ins.Text)
	return ins, true
}

func clamp(buffer string, caret int) int {
	if caret < 0 {
		return 0
	}
	if caret > len(buffer) {
		return len(buffer)
	}
	return caret
}
