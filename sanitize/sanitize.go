// Package sanitize strips code the user has already typed from model suggestions.
package sanitize

import (
	"fmt"
	"strings"
)

// Strategy removes duplicated leading content from a suggestion.
// code is the buffer text up to the cursor.
type Strategy interface {
	Sanitize(code, suggestion string) string
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(code, suggestion string) string

// Sanitize calls f(code, suggestion).
func (f StrategyFunc) Sanitize(code, suggestion string) string {
	return f(code, suggestion)
}

// PrefixDuplicate drops the suggestion's first line when it starts with
// the already-typed content of the current line. Following lines that
// also start with it go too, so a second pass finds nothing to drop.
var PrefixDuplicate Strategy = StrategyFunc(prefixDuplicate)

// LineMembership drops the leading run of suggestion lines that already
// appear, trimmed, anywhere in the code before the cursor.
var LineMembership Strategy = StrategyFunc(lineMembership)

// Chain applies strategies in order, once each.
func Chain(strategies ...Strategy) Strategy {
	return StrategyFunc(func(code, suggestion string) string {
		for _, s := range strategies {
			suggestion = s.Sanitize(code, suggestion)
		}
		return suggestion
	})
}

// Settle applies s until its output stops changing. The result is
// idempotent for any strategy whose output is a trimmed substring of its input.
func Settle(s Strategy) Strategy {
	return StrategyFunc(func(code, suggestion string) string {
		for {
			next := s.Sanitize(code, suggestion)
			if next == suggestion {
				return next
			}
			suggestion = next
		}
	})
}

// Lookup returns the strategy registered under name:
// "line" (default), "prefix", or "both". All three are idempotent.
func Lookup(name string) (Strategy, error) {
	switch name {
	case "", "line":
		return LineMembership, nil
	case "prefix":
		return PrefixDuplicate, nil
	case "both":
		return Settle(Chain(PrefixDuplicate, LineMembership)), nil
	default:
		return nil, fmt.Errorf("unknown sanitize strategy %q", name)
	}
}

// Redundant reports whether a sanitized suggestion has nothing left to insert.
func Redundant(sanitized string) bool {
	return strings.TrimSpace(sanitized) == ""
}

// CurrentLine returns the text between the last newline of code and its end.
func CurrentLine(code string) string {
	if i := strings.LastIndexByte(code, '\n'); i >= 0 {
		return code[i+1:]
	}
	return code
}

func prefixDuplicate(code, suggestion string) string {
	typed := strings.TrimSpace(CurrentLine(code))
	lines := strings.Split(suggestion, "\n")
	if typed == "" {
		return strings.TrimSpace(suggestion)
	}
	start := 0
	for start < len(lines) {
		trimmed := strings.TrimSpace(lines[start])
		if trimmed == "" {
			start++
			continue
		}
		if !strings.HasPrefix(trimmed, typed) {
			break
		}
		start++
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}

func lineMembership(code, suggestion string) string {
	present := make(map[string]bool)
	for _, line := range strings.Split(code, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			present[trimmed] = true
		}
	}

	lines := strings.Split(suggestion, "\n")
	start := 0
	for start < len(lines) {
		trimmed := strings.TrimSpace(lines[start])
		if trimmed != "" && !present[trimmed] {
			break
		}
		start++
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}
