package generate

import (
	"reflect"
	"testing"
)

func TestExtractSuggestionsTwoFences(t *testing.T) {
	content := "Here you go:\n```go\nfmt.Println(1)\n```\nor\n```go\nfmt.Println(2)\n```\n"
	got, err := ExtractSuggestions(content, ModeInline)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"fmt.Println(1)", "fmt.Println(2)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestExtractSuggestionsModes(t *testing.T) {
	tests := []struct {
		name    string
		content string
		mode    Mode
		want    []string
	}{
		{"inline prose only", "just use a loop", ModeInline, nil},
		{"chat prose fallback", "  just use a loop \n", ModeChat, []string{"just use a loop"}},
		{"chat blank", "   ", ModeChat, nil},
		{"no language tag", "```\nx := 1\n```", ModeInline, []string{"x := 1"}},
		{"language with symbols", "```c++\nint x;\n```", ModeInline, []string{"int x;"}},
		{"unterminated fence", "```py\nprint(1)\nprint(2)", ModeInline, []string{"print(1)\nprint(2)"}},
		{"closed then unterminated", "```\na\n```\ntext\n```\nb", ModeChat, []string{"a", "b"}},
		{"empty fence", "```go\n\n```", ModeChat, nil},
		{"chat inline backticks", "Wrap the snippet in ``` fences when you paste it.", ModeChat,
			[]string{"Wrap the snippet in ``` fences when you paste it."}},
		{"inline stray backticks", "use ``` here", ModeInline, nil},
		{"crlf", "```go\r\nreturn\r\n```", ModeInline, []string{"return"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractSuggestions(tt.content, tt.mode)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestExtractSuggestionsZeroModeInvalid(t *testing.T) {
	var m Mode
	if _, err := ExtractSuggestions("```\nx\n```", m); err == nil {
		t.Error("expected error for zero mode")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("inline"); err != nil || m != ModeInline {
		t.Errorf("ParseMode(inline) = %v, %v", m, err)
	}
	if m, err := ParseMode("chat"); err != nil || m != ModeChat {
		t.Errorf("ParseMode(chat) = %v, %v", m, err)
	}
	if _, err := ParseMode(""); err == nil {
		t.Error("expected error for empty mode")
	}
}

func TestParseContent(t *testing.T) {
	body := []byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"total_tokens":3}}`)
	got, err := ParseContent(body)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
}

func TestParseContentErrors(t *testing.T) {
	bodies := []string{
		`not json`,
		`{}`,
		`{"choices":[]}`,
		`{"choices":[{"finish_reason":null}]}`,
		`{"error":{"message":"bad model"}}`,
	}
	for _, body := range bodies {
		if _, err := ParseContent([]byte(body)); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}

func TestSuggestionsMalformedBody(t *testing.T) {
	if got := Suggestions([]byte(`{"choices":`), ModeChat); len(got) != 0 {
		t.Errorf("expected no suggestions, got %q", got)
	}
}

func TestSuggestions(t *testing.T) {
	body := []byte(`{"choices":[{"message":{"content":"` + "```go\\nreturn nil\\n```" + `"}}]}`)
	got := Suggestions(body, ModeInline)
	if !reflect.DeepEqual(got, []string{"return nil"}) {
		t.Errorf("unexpected suggestions %q", got)
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	if got := truncate("aé", 2); got != "a" {
		t.Errorf("expected %q, got %q", "a", got)
	}
	if got := truncate("abc", 5); got != "abc" {
		t.Errorf("expected %q, got %q", "abc", got)
	}
}
