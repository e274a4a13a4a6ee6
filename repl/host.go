package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/archive"
	"github.com/Paranoid-AF/codelet/conversation"
	"github.com/Paranoid-AF/codelet/explain"
	"github.com/Paranoid-AF/codelet/sanitize"
	"github.com/Paranoid-AF/codelet/surface"
)

const help = `commands:
  <text>         insert text at the caret and complete
  :nl            insert a newline at the caret
  :at <n|end>    move the caret
  :show          print the buffer with the caret marked
  :complete      request suggestions at the caret
  :apply <n>     insert suggestion n
  :dismiss       hide the suggestion list
  :explain       explain the line (needs // before the caret)
  :tab           insert a ready explanation
  :chat <text>   send a chat message
  :new           start a new conversation
  :history       list archived conversations
  :write [path]  save the buffer
  :quit          exit
`

// assistant is the part of the engine the repl drives.
type assistant interface {
	Complete(ctx context.Context, req *codelet.Request) *codelet.Response
	Explain(ctx context.Context, req *codelet.Request, cache *explain.Cache) *codelet.Response
	BeginChat(language string) *conversation.Session
	Chat(ctx context.Context, sess *conversation.Session, req *codelet.Request) *codelet.Response
	NewConversation(sess *conversation.Session) int
	Strategy() sanitize.Strategy
	Config() *codelet.Config
}

// historian is implemented by engines that archive conversations.
type historian interface {
	History(limit int) ([]archive.Entry, error)
}

// host plays the editor: it owns the buffer, the caret and everything an
// editor session would keep.
type host struct {
	engine   assistant
	language string
	file     string
	tty      io.Writer

	buffer string
	caret  int
	reqID  int

	cache   *explain.Cache
	surface *surface.Controller
	conv    *conversation.Session
}

func newHost(a assistant, language, buffer string, tty io.Writer) *host {
	var opts []explain.Option
	if ttl := a.Config().Explain.TTLMinutes; ttl > 0 {
		opts = append(opts, explain.WithTTL(time.Duration(ttl)*time.Minute))
	}
	return &host{
		engine:   a,
		language: language,
		tty:      tty,
		buffer:   buffer,
		caret:    len(buffer),
		cache:    explain.NewCache(opts...),
		surface:  surface.NewController(newTTYPresenter(tty), a.Strategy()),
		conv:     a.BeginChat(language),
	}
}

func (h *host) close() {
	h.cache.Close()
}

func (h *host) setCaret(n int) {
	h.caret = max(0, min(n, len(h.buffer)))
}

// insert splices text in at offset and keeps cached explanations aligned.
func (h *host) insert(offset int, text string) {
	offset = max(0, min(offset, len(h.buffer)))
	h.buffer = h.buffer[:offset] + text + h.buffer[offset:]
	h.cache.Shift(offset, len(text))
	if h.caret >= offset {
		h.caret += len(text)
	}
}

func (h *host) apply(ins codelet.Insertion) {
	h.insert(ins.Offset, ins.Text)
	h.setCaret(ins.CursorOffset)
}

func (h *host) request(typ string) *codelet.Request {
	h.reqID++
	return &codelet.Request{
		Type:         typ,
		RequestID:    h.reqID,
		SessionID:    "repl",
		Buffer:       h.buffer,
		CursorOffset: h.caret,
		Language:     h.language,
	}
}

// exec runs one input line. It returns a record for lines that reached the
// engine, and quit when the session should end.
func (h *host) exec(line string) (rec *record, quit bool, err error) {
	if !strings.HasPrefix(line, ":") {
		h.insert(h.caret, line)
		return h.complete(line), false, nil
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "q", "quit":
		return nil, true, nil

	case "h", "help":
		fmt.Fprint(h.tty, help)

	case "nl":
		h.insert(h.caret, "\n")

	case "at":
		if arg == "end" {
			h.setCaret(len(h.buffer))
			break
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, false, fmt.Errorf("at: %w", err)
		}
		h.setCaret(n)

	case "show":
		fmt.Fprintf(h.tty, "%s‸%s\n", h.buffer[:h.caret], h.buffer[h.caret:])

	case "complete", "c":
		return h.complete(""), false, nil

	case "apply", "a":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, false, fmt.Errorf("apply: %w", err)
		}
		req := h.request(codelet.TypeApply)
		req.Index = n - 1
		resp := &codelet.Response{}
		if ins, ok := h.surface.ApplySelected(req.Index, h.buffer, h.caret); ok {
			h.apply(ins)
			resp.Insertion = &ins
		}
		return newRecord(":apply", req, resp), false, nil

	case "dismiss":
		h.surface.Dismiss()

	case "explain", "e":
		req := h.request(codelet.TypeExplain)
		return newRecord(":explain", req, h.engine.Explain(context.Background(), req, h.cache)), false, nil

	case "tab":
		req := h.request(codelet.TypeConsume)
		resp := &codelet.Response{}
		if ins, ok := explain.Consume(h.cache, h.buffer, h.caret); ok {
			h.apply(ins)
			resp.Insertion = &ins
		}
		return newRecord(":tab", req, resp), false, nil

	case "chat":
		if arg == "" {
			return nil, false, errors.New("chat: empty message")
		}
		req := h.request(codelet.TypeChat)
		req.Text = arg
		return newRecord(":chat", req, h.engine.Chat(context.Background(), h.conv, req)), false, nil

	case "new":
		req := h.request(codelet.TypeReset)
		resp := &codelet.Response{Archived: h.engine.NewConversation(h.conv)}
		return newRecord(":new", req, resp), false, nil

	case "history":
		hist, ok := h.engine.(historian)
		if !ok {
			return nil, false, errors.New("history: archive not available")
		}
		entries, err := hist.History(10)
		if err != nil {
			return nil, false, fmt.Errorf("history: %w", err)
		}
		if len(entries) == 0 {
			fmt.Fprintln(h.tty, "(no archived conversations)")
		}
		for _, e := range entries {
			fmt.Fprintf(h.tty, "  #%d %s %s %d messages (%s)\n",
				e.ID, e.Archived.Local().Format(time.DateTime), e.Model, e.Messages, e.SessionID)
		}

	case "write", "w":
		path := arg
		if path == "" {
			path = h.file
		}
		if path == "" {
			return nil, false, errors.New("write: no path")
		}
		if err := os.WriteFile(path, []byte(h.buffer), 0o644); err != nil {
			return nil, false, err
		}
		fmt.Fprintf(h.tty, "wrote %d bytes to %s\n", len(h.buffer), path)

	default:
		return nil, false, fmt.Errorf("unknown command :%s", cmd)
	}
	return nil, false, nil
}

func (h *host) complete(typed string) *record {
	req := h.request(codelet.TypeComplete)
	resp := h.engine.Complete(context.Background(), req)
	h.surface.Present(resp.Suggestions)
	rec := newRecord(":complete", req, resp)
	rec.Request.Text = typed
	return rec
}

// summarize prints the parts of a record the presenter does not show.
func (h *host) summarize(rec *record) {
	switch {
	case rec.Error != nil:
		fmt.Fprintf(h.tty, "error [%s]: %s\n", rec.Error.Code, rec.Error.Message)
	case rec.Request.Command == ":complete" && len(rec.Suggestions) == 0:
		fmt.Fprintf(h.tty, "(no suggestions)\n")
	case rec.Request.Command == ":explain":
		fmt.Fprintf(h.tty, "(explaining in the background; :tab to insert)\n")
	case rec.Request.Command == ":chat":
		fmt.Fprintf(h.tty, "%s\n", rec.Content)
	case rec.Request.Command == ":new":
		fmt.Fprintf(h.tty, "(archived %d messages)\n", rec.Archived)
	case rec.Insertion != nil:
		fmt.Fprintf(h.tty, "inserted %q at %d\n", rec.Insertion.Text, rec.Insertion.Offset)
	case rec.Request.Command == ":apply" || rec.Request.Command == ":tab":
		fmt.Fprintf(h.tty, "(nothing to insert)\n")
	}
}
