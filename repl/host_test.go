package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/archive"
	"github.com/Paranoid-AF/codelet/conversation"
	"github.com/Paranoid-AF/codelet/explain"
	"github.com/Paranoid-AF/codelet/sanitize"
)

type stubAssistant struct {
	suggestions []string
	requests    []*codelet.Request
}

func (s *stubAssistant) Complete(_ context.Context, req *codelet.Request) *codelet.Response {
	s.requests = append(s.requests, req)
	return &codelet.Response{RequestID: req.RequestID, Suggestions: s.suggestions}
}

func (s *stubAssistant) Explain(_ context.Context, req *codelet.Request, cache *explain.Cache) *codelet.Response {
	cache.Put(req.CursorOffset, "note")
	return &codelet.Response{RequestID: req.RequestID, Suggestions: []string{}, OK: true}
}

func (s *stubAssistant) BeginChat(language string) *conversation.Session {
	return conversation.Begin("chat about " + language)
}

func (s *stubAssistant) Chat(_ context.Context, sess *conversation.Session, req *codelet.Request) *codelet.Response {
	p := sess.Exchange(req.Text)
	sess.Resolve(p, "echo: "+req.Text)
	return &codelet.Response{RequestID: req.RequestID, Content: "echo: " + req.Text}
}

func (s *stubAssistant) NewConversation(sess *conversation.Session) int {
	return len(sess.Reset())
}

func (s *stubAssistant) Strategy() sanitize.Strategy { return sanitize.LineMembership }

func (s *stubAssistant) Config() *codelet.Config { return codelet.DefaultConfig() }

func newTestHost(t *testing.T, buffer string, suggestions ...string) (*host, *stubAssistant, *bytes.Buffer) {
	t.Helper()
	stub := &stubAssistant{suggestions: suggestions}
	var tty bytes.Buffer
	h := newHost(stub, "go", buffer, &tty)
	t.Cleanup(h.close)
	return h, stub, &tty
}

func mustExec(t *testing.T, h *host, line string) *record {
	t.Helper()
	rec, quit, err := h.exec(line)
	if err != nil {
		t.Fatalf("exec(%q): %v", line, err)
	}
	if quit {
		t.Fatalf("exec(%q) quit unexpectedly", line)
	}
	return rec
}

func TestTypingInsertsAndCompletes(t *testing.T) {
	h, stub, _ := newTestHost(t, "x := 1\n", "y := 2")

	rec := mustExec(t, h, "y")

	if h.buffer != "x := 1\ny" || h.caret != 8 {
		t.Errorf("unexpected buffer %q caret %d", h.buffer, h.caret)
	}
	if rec == nil || rec.Request.Command != ":complete" || rec.Request.Text != "y" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(stub.requests) != 1 || stub.requests[0].CursorOffset != 8 {
		t.Errorf("expected completion at caret 8, got %+v", stub.requests)
	}
	if stub.requests[0].Language != "go" || stub.requests[0].Type != codelet.TypeComplete {
		t.Errorf("unexpected request %+v", stub.requests[0])
	}
}

func TestApplySanitizesAndMovesCaret(t *testing.T) {
	h, _, tty := newTestHost(t, "x := 1\n", "x := 1\ny := 2", "z")

	mustExec(t, h, ":complete")
	if !strings.Contains(tty.String(), "1. x := 1 (+1 lines)") {
		t.Errorf("expected listed suggestions, got %q", tty.String())
	}

	rec := mustExec(t, h, ":apply 1")
	if rec.Insertion == nil || rec.Insertion.Text != "y := 2" {
		t.Fatalf("unexpected insertion %+v", rec.Insertion)
	}
	if h.buffer != "x := 1\ny := 2" || h.caret != len(h.buffer) {
		t.Errorf("unexpected buffer %q caret %d", h.buffer, h.caret)
	}

	// The surface is gone after applying.
	rec = mustExec(t, h, ":apply 2")
	if rec.Insertion != nil {
		t.Errorf("expected nothing to apply, got %+v", rec.Insertion)
	}
}

func TestExplainSurvivesEarlierEdit(t *testing.T) {
	h, _, _ := newTestHost(t, "a //\n")
	h.setCaret(4)

	rec := mustExec(t, h, ":explain")
	if rec.Error != nil {
		t.Fatalf("unexpected error %+v", rec.Error)
	}

	h.insert(0, "b")
	if h.caret != 5 {
		t.Fatalf("expected caret 5, got %d", h.caret)
	}

	rec = mustExec(t, h, ":tab")
	if rec.Insertion == nil {
		t.Fatal("expected explanation insertion")
	}
	if h.buffer != "ba // note\n" {
		t.Errorf("unexpected buffer %q", h.buffer)
	}
	if h.caret != len("ba // note") {
		t.Errorf("unexpected caret %d", h.caret)
	}
}

func TestChatAndNewConversation(t *testing.T) {
	h, _, tty := newTestHost(t, "")

	rec := mustExec(t, h, ":chat hello there")
	h.summarize(rec)
	if rec.Content != "echo: hello there" {
		t.Errorf("unexpected content %q", rec.Content)
	}
	if !strings.Contains(tty.String(), "echo: hello there") {
		t.Errorf("expected reply on tty, got %q", tty.String())
	}

	rec = mustExec(t, h, ":new")
	if rec.Archived != 2 {
		t.Errorf("expected 2 archived messages, got %d", rec.Archived)
	}
}

func TestExecCommands(t *testing.T) {
	h, _, _ := newTestHost(t, "abc")

	mustExec(t, h, ":at 1")
	if h.caret != 1 {
		t.Errorf("expected caret 1, got %d", h.caret)
	}
	mustExec(t, h, ":at 99")
	if h.caret != 3 {
		t.Errorf("expected clamped caret 3, got %d", h.caret)
	}
	mustExec(t, h, ":at 0")
	mustExec(t, h, ":nl")
	if h.buffer != "\nabc" || h.caret != 1 {
		t.Errorf("unexpected buffer %q caret %d", h.buffer, h.caret)
	}

	for _, bad := range []string{":at x", ":apply", ":chat", ":bogus", ":write", ":history"} {
		if _, _, err := h.exec(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
	if _, quit, _ := h.exec(":quit"); !quit {
		t.Error("expected :quit to end the session")
	}
}

func TestRunWritesRecords(t *testing.T) {
	h, _, _ := newTestHost(t, "", "fmt.Println()")
	var out bytes.Buffer

	run(strings.NewReader("fmt.\n:quit\n:complete\n"), &out, h, false)

	var rec record
	if _, err := toml.Decode(out.String(), &rec); err != nil {
		t.Fatalf("output is not valid TOML: %v\n%s", err, out.String())
	}
	if rec.Request.Command != ":complete" || rec.Request.Text != "fmt." {
		t.Errorf("unexpected request %+v", rec.Request)
	}
	if len(rec.Suggestions) != 1 || rec.Suggestions[0] != "fmt.Println()" {
		t.Errorf("unexpected suggestions %v", rec.Suggestions)
	}
	if strings.Count(out.String(), "[request]") != 1 {
		t.Errorf("expected a single record after :quit, got\n%s", out.String())
	}
}

func TestWriteRecordOmitsEmptySections(t *testing.T) {
	var out bytes.Buffer
	rec := newRecord(":tab", &codelet.Request{RequestID: 3}, &codelet.Response{})
	if err := writeRecord(&out, rec); err != nil {
		t.Fatal(err)
	}
	for _, section := range []string{"[insertion]", "[error]", "suggestions", "archived"} {
		if strings.Contains(out.String(), section) {
			t.Errorf("expected %s to be omitted, got\n%s", section, out.String())
		}
	}
}

func TestPresenterTruncatesToWidth(t *testing.T) {
	var tty bytes.Buffer
	p := &ttyPresenter{w: &tty, width: 10}

	p.Show([]string{"fmt.Println(longArgument)"})
	if !p.Visible() {
		t.Error("expected visible after show")
	}
	line := strings.Split(tty.String(), "\n")[1]
	if got := len([]rune(line)); got != 10 {
		t.Errorf("expected line truncated to 10 runes, got %d: %q", got, line)
	}
	p.Hide()
	if p.Visible() {
		t.Error("expected hidden after hide")
	}
}

type archivingStub struct {
	stubAssistant
	entries []archive.Entry
}

func (s *archivingStub) History(limit int) ([]archive.Entry, error) {
	return s.entries, nil
}

func TestHistoryListsArchive(t *testing.T) {
	stub := &archivingStub{entries: []archive.Entry{
		{ID: 2, SessionID: "abc", Model: "m", Archived: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Messages: 4},
	}}
	var tty bytes.Buffer
	h := newHost(stub, "go", "", &tty)
	defer h.close()

	mustExec(t, h, ":history")
	if !strings.Contains(tty.String(), "#2") || !strings.Contains(tty.String(), "4 messages") {
		t.Errorf("unexpected history output %q", tty.String())
	}
}
