package generate

import (
	"log/slog"
	"os"
	"strings"
	"text/template"

	codelet "github.com/Paranoid-AF/codelet"
	defaults "github.com/Paranoid-AF/codelet/default"
)

// Prompt kinds. Each has an embedded default and may be overridden by
// <kind>_prompt.md in the config directory.
const (
	PromptCompletion = "completion"
	PromptExplain    = "explain"
	PromptChat       = "chat"
)

// PromptKinds lists every prompt kind.
var PromptKinds = []string{PromptCompletion, PromptExplain, PromptChat}

// PromptData holds the data passed to prompt templates.
type PromptData struct {
	Language       string
	Marker         string
	MaxSuggestions int
}

// DefaultPrompt returns the embedded template for kind.
func DefaultPrompt(kind string) string {
	switch kind {
	case PromptExplain:
		return defaults.ExplainPrompt
	case PromptChat:
		return defaults.ChatPrompt
	default:
		return defaults.CompletionPrompt
	}
}

// loadCustomPrompts reads custom prompt templates from the config directory.
// Kinds without a custom file are absent from the result.
func loadCustomPrompts() map[string]string {
	prompts := make(map[string]string)
	for _, kind := range PromptKinds {
		path := codelet.PromptPath(kind)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		slog.Info("loaded custom prompt", "kind", kind, "path", path)
		prompts[kind] = string(data)
	}
	return prompts
}

// renderPrompt executes the template for kind, falling back to the
// embedded default when the custom template is broken.
func renderPrompt(custom map[string]string, kind string, data PromptData) string {
	fallback := DefaultPrompt(kind)
	tmplSrc := custom[kind]
	if tmplSrc == "" {
		tmplSrc = fallback
	}

	t, err := template.New(kind).Parse(tmplSrc)
	if err != nil {
		slog.Warn("failed to parse prompt template, falling back to default", "kind", kind, "error", err)
		t = template.Must(template.New(kind).Parse(fallback))
	}

	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		slog.Warn("failed to execute prompt template, falling back to default", "kind", kind, "error", err)
		buf.Reset()
		template.Must(template.New(kind).Parse(fallback)).Execute(&buf, data)
	}
	return strings.TrimRight(buf.String(), " \t\n")
}
