package generate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Mode selects how responses without fenced code are handled.
// The zero Mode is invalid so callers must choose explicitly.
type Mode int

const (
	// ModeInline returns only fenced code; prose never becomes a suggestion.
	ModeInline Mode = iota + 1
	// ModeChat falls back to the whole reply when no fence is present.
	ModeChat
)

func (m Mode) String() string {
	switch m {
	case ModeInline:
		return "inline"
	case ModeChat:
		return "chat"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "inline" or "chat".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "inline":
		return ModeInline, nil
	case "chat":
		return ModeChat, nil
	default:
		return 0, fmt.Errorf("unknown suggestion mode %q", s)
	}
}

// errNoContent is returned when a response has no usable choice.
var errNoContent = errors.New("no content in response")

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message      *chatMessage `json:"message"`
	FinishReason *string      `json:"finish_reason"`
}

type chatMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ParseContent decodes a chat response body and returns the first choice's content.
// Unknown fields are ignored.
func ParseContent(body []byte) (string, error) {
	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message == nil {
		return "", errNoContent
	}
	if fr := result.Choices[0].FinishReason; fr != nil && *fr == "length" {
		slog.Debug("response truncated by max_tokens")
	}
	return result.Choices[0].Message.Content, nil
}

var (
	reFence     = regexp.MustCompile("(?s)```[A-Za-z0-9_+.#-]*[ \t]*\r?\n(.*?)```")
	reOpenFence = regexp.MustCompile("(?s)```[A-Za-z0-9_+.#-]*[ \t]*\r?\n(.*)$")
)

// ExtractSuggestions returns the trimmed contents of fenced code blocks in
// order of appearance. An unterminated final fence extends to end of text.
// Without any fence, ModeInline yields nothing and ModeChat yields the
// whole trimmed content.
func ExtractSuggestions(content string, mode Mode) ([]string, error) {
	if mode != ModeInline && mode != ModeChat {
		return nil, fmt.Errorf("invalid suggestion mode %v", mode)
	}

	var out []string
	fenced := false
	rest := content
	for {
		loc := reFence.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		fenced = true
		if block := strings.TrimSpace(rest[loc[2]:loc[3]]); block != "" {
			out = append(out, block)
		}
		rest = rest[loc[1]:]
	}

	if m := reOpenFence.FindStringSubmatch(rest); m != nil {
		fenced = true
		if block := strings.TrimSpace(m[1]); block != "" {
			slog.Debug("unterminated code fence, using remainder of response")
			out = append(out, block)
		}
	}

	// A fence whose body was blank still counts as code; no prose fallback.
	if fenced {
		return out, nil
	}

	if mode == ModeChat {
		if trimmed := strings.TrimSpace(content); trimmed != "" {
			return []string{trimmed}, nil
		}
	}
	return nil, nil
}

// Suggestions parses a raw response body and extracts suggestions.
// Malformed bodies are logged and yield an empty list.
func Suggestions(body []byte, mode Mode) []string {
	content, err := ParseContent(body)
	if err != nil {
		slog.Warn("unusable response body", "error", err, "body", truncate(string(body), 512))
		return nil
	}
	suggestions, err := ExtractSuggestions(content, mode)
	if err != nil {
		slog.Warn("suggestion extraction failed", "error", err)
		return nil
	}
	return suggestions
}

// truncate limits s to n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:clampOffset(s, n)]
}
