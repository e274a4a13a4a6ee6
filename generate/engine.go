// Package generate turns editor context into model-backed suggestions,
// explanations and chat replies.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/archive"
	"github.com/Paranoid-AF/codelet/conversation"
	"github.com/Paranoid-AF/codelet/explain"
	"github.com/Paranoid-AF/codelet/redact"
	"github.com/Paranoid-AF/codelet/sanitize"
)

// DefaultMaxSuggestions is used when the config does not set a limit.
const DefaultMaxSuggestions = 4

const notConfiguredMessage = "generation API key not configured; set CODELET_API_KEY or generation.api_key in config.toml"

// Engine wires config, prompts, the orchestrator and the sanitizer into
// the editor-facing operations.
type Engine struct {
	config   *codelet.Config
	orch     *Orchestrator // nil when no API key is configured
	strategy sanitize.Strategy
	prompts  map[string]string // custom prompt templates by kind
	archive  *archive.Archive
}

// NewEngine creates an engine from the on-disk configuration.
func NewEngine() *Engine {
	cfg, err := codelet.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = codelet.DefaultConfig()
	}

	client, err := NewClient(cfg)
	if err != nil {
		slog.Warn("generation disabled", "error", err)
	}

	e := newEngine(cfg, client)
	e.prompts = loadCustomPrompts()

	if codelet.ArchiveEnabled(cfg) {
		path := codelet.ArchivePath(cfg)
		a, err := archive.Open(path)
		if err != nil {
			slog.Warn("conversation archive disabled", "path", path, "error", err)
		} else {
			e.archive = a
		}
	}
	return e
}

// newEngine creates an engine over an explicit client. A nil client leaves
// the engine unconfigured.
func newEngine(cfg *codelet.Config, client Client) *Engine {
	strategy, err := sanitize.Lookup(cfg.Completion.Strategy)
	if err != nil {
		slog.Warn("using default sanitize strategy", "error", err)
		strategy = sanitize.LineMembership
	}

	e := &Engine{
		config:   cfg,
		strategy: strategy,
		prompts:  map[string]string{},
	}
	if client != nil {
		timeout := time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
		e.orch = NewOrchestrator(client, cfg.Generation.HistoryCap, timeout)
	}
	return e
}

// Close releases resources held by the engine.
func (e *Engine) Close() {
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			slog.Warn("failed to close archive", "error", err)
		}
	}
}

// Config returns the engine's configuration.
func (e *Engine) Config() *codelet.Config {
	return e.config
}

// Configured reports whether the engine can reach a model.
func (e *Engine) Configured() bool {
	return e.orch != nil
}

// Strategy returns the configured sanitize strategy.
func (e *Engine) Strategy() sanitize.Strategy {
	return e.strategy
}

func notConfigured(requestID int) *codelet.Response {
	return &codelet.Response{
		RequestID:   requestID,
		Suggestions: []string{},
		Error:       &codelet.Error{Code: "not_configured", Message: notConfiguredMessage},
	}
}

func (e *Engine) windowOptions() WindowOptions {
	opts := DefaultWindow()
	c := e.config.Completion
	if c.WindowBefore > 0 {
		opts.Before = c.WindowBefore
	}
	if c.WindowAfter > 0 {
		opts.After = c.WindowAfter
	}
	if c.CursorMarker != "" {
		opts.Marker = c.CursorMarker
	}
	return opts
}

// contextWindow extracts and redacts the window around offset.
func (e *Engine) contextWindow(buffer string, offset int, language string) string {
	opts := e.windowOptions()
	before, after := SplitWindow(buffer, offset, opts)
	if codelet.RedactEnabled(e.config) {
		before = redact.Source(language, before)
		after = redact.Source(language, after)
	}
	return before + opts.Marker + after
}

func (e *Engine) maxSuggestions() int {
	if n := e.config.Completion.MaxSuggestions; n > 0 {
		return n
	}
	return DefaultMaxSuggestions
}

// await sends one turn and blocks until its reply or ctx is done.
func (e *Engine) await(ctx context.Context, sess *conversation.Session, text string, params Params) (Reply, bool) {
	replies := make(chan Reply, 1)
	e.orch.Send(ctx, sess, text, params, func(r Reply) { replies <- r })
	select {
	case r := <-replies:
		return r, true
	case <-ctx.Done():
		return Reply{}, false
	}
}

// Complete returns sanitized inline suggestions for the cursor position.
func (e *Engine) Complete(ctx context.Context, req *codelet.Request) *codelet.Response {
	if e.orch == nil {
		return notConfigured(req.RequestID)
	}

	resp := &codelet.Response{RequestID: req.RequestID, Suggestions: []string{}}
	if strings.TrimSpace(req.Buffer) == "" {
		return resp
	}
	offset := clampOffset(req.Buffer, req.CursorOffset)

	systemPrompt := renderPrompt(e.prompts, PromptCompletion, PromptData{
		Language:       req.Language,
		Marker:         strings.TrimSpace(e.windowOptions().Marker),
		MaxSuggestions: e.maxSuggestions(),
	})
	window := e.contextWindow(req.Buffer, offset, req.Language)
	slog.Debug("prompt", "system", systemPrompt, "user", window)

	if ctx.Err() != nil {
		return resp
	}

	sess := conversation.Begin(systemPrompt)
	reply, ok := e.await(ctx, sess, window, ParamsFrom(e.config.Completion.Sampling))
	if !ok {
		return resp
	}
	if reply.Err != nil {
		slog.Error("generation error", "error", reply.Err)
		resp.Error = &codelet.Error{Code: "api_error", Message: reply.Err.Error()}
		return resp
	}

	candidates, err := ExtractSuggestions(reply.Content, ModeInline)
	if err != nil {
		slog.Warn("suggestion extraction failed", "error", err)
		return resp
	}
	resp.Suggestions = e.clean(req.Buffer[:offset], candidates)
	return resp
}

// clean sanitizes candidates against code, dropping redundant and
// duplicate results, and caps the list.
func (e *Engine) clean(code string, candidates []string) []string {
	limit := e.maxSuggestions()
	out := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if len(out) >= limit {
			break
		}
		s := e.strategy.Sanitize(code, c)
		if sanitize.Redundant(s) || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// explainPrompt builds the user turn asking about one line.
func explainPrompt(window, line string) string {
	var sb strings.Builder
	sb.WriteString("I have the following code:\n")
	sb.WriteString(window)
	sb.WriteString("\nPlease give a short explanation for the following line:\n")
	sb.WriteString(strings.TrimSpace(line))
	return sb.String()
}

// Explain starts a background explanation of the line at the cursor and
// stores the shortened result in cache under the cursor offset. It
// returns without waiting for the model. Failed explanations are logged
// and never cached.
func (e *Engine) Explain(ctx context.Context, req *codelet.Request, cache *explain.Cache) *codelet.Response {
	if e.orch == nil {
		return notConfigured(req.RequestID)
	}
	if !explain.Triggered(req.Buffer, req.CursorOffset) {
		return &codelet.Response{
			RequestID:   req.RequestID,
			Suggestions: []string{},
			Error: &codelet.Error{
				Code:    "invalid_request",
				Message: fmt.Sprintf("explain requires %q before the cursor", explain.Marker),
			},
		}
	}

	offset := min(req.CursorOffset, len(req.Buffer))
	line := explain.CurrentLine(req.Buffer, offset)
	if codelet.RedactEnabled(e.config) {
		line = redact.Source(req.Language, line)
	}
	user := explainPrompt(e.contextWindow(req.Buffer, offset, req.Language), line)
	systemPrompt := renderPrompt(e.prompts, PromptExplain, PromptData{Language: req.Language})
	maxChars := e.config.Explain.MaxChars

	sess := conversation.Begin(systemPrompt)
	e.orch.Send(context.WithoutCancel(ctx), sess, user, ParamsFrom(e.config.Explain.Sampling), func(r Reply) {
		if r.Err != nil {
			slog.Warn("explanation failed", "offset", offset, "error", r.Err)
			return
		}
		text := strings.TrimPrefix(strings.TrimSpace(r.Content), explain.Marker)
		text = explain.Shorten(text, maxChars)
		if text == "" {
			return
		}
		cache.Put(offset, text)
		slog.Debug("explanation cached", "offset", offset, "text", text)
	})

	return &codelet.Response{RequestID: req.RequestID, Suggestions: []string{}, OK: true}
}

// BeginChat creates a conversation seeded with the chat system prompt.
func (e *Engine) BeginChat(language string) *conversation.Session {
	return conversation.Begin(renderPrompt(e.prompts, PromptChat, PromptData{Language: language}))
}

// Chat sends one user turn in sess and waits for the reply. Code blocks in
// the reply are returned as suggestions; a reply without code becomes a
// single suggestion.
func (e *Engine) Chat(ctx context.Context, sess *conversation.Session, req *codelet.Request) *codelet.Response {
	if e.orch == nil {
		return notConfigured(req.RequestID)
	}
	resp := &codelet.Response{RequestID: req.RequestID, Suggestions: []string{}}
	if strings.TrimSpace(req.Text) == "" {
		resp.Error = &codelet.Error{Code: "invalid_request", Message: "chat text is empty"}
		return resp
	}

	reply, ok := e.await(ctx, sess, req.Text, ParamsFrom(e.config.Chat))
	if !ok {
		return resp
	}
	resp.Content = reply.Content
	if reply.Err != nil {
		resp.Error = &codelet.Error{Code: "api_error", Message: reply.Err.Error()}
		return resp
	}
	if reply.Stale {
		slog.Debug("chat reply arrived after the conversation moved on", "seq", reply.Seq)
	}

	suggestions, err := ExtractSuggestions(reply.Content, ModeChat)
	if err != nil {
		slog.Warn("suggestion extraction failed", "error", err)
	}
	if suggestions != nil {
		resp.Suggestions = suggestions
	}
	return resp
}

// NewConversation resets sess to its system prompt and archives the
// discarded messages when archiving is enabled. It returns the number of
// discarded messages.
func (e *Engine) NewConversation(sess *conversation.Session) int {
	tail := sess.Reset()
	if e.archive != nil && len(tail) > 0 {
		model := codelet.ResolveModel(e.config.Chat)
		if _, err := e.archive.Save(sess.ID(), model, tail, time.Now()); err != nil {
			slog.Warn("failed to archive conversation", "session", sess.ID(), "error", err)
		}
	}
	return len(tail)
}

// History lists the most recently archived conversations, newest first.
// It returns nil when archiving is disabled.
func (e *Engine) History(limit int) ([]archive.Entry, error) {
	if e.archive == nil {
		return nil, nil
	}
	return e.archive.Recent(limit)
}
