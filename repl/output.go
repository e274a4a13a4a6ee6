package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"

	codelet "github.com/Paranoid-AF/codelet"
)

// record is one TOML entry in the output log.
type record struct {
	Request     requestRecord    `toml:"request"`
	Suggestions []string         `toml:"suggestions,omitempty"`
	Content     string           `toml:"content,omitempty"`
	Insertion   *insertionRecord `toml:"insertion,omitempty"`
	Archived    int              `toml:"archived,omitempty"`
	Error       *errorRecord     `toml:"error,omitempty"`
}

type requestRecord struct {
	Timestamp time.Time `toml:"timestamp"`
	Command   string    `toml:"command"`
	ID        int       `toml:"id"`
	Language  string    `toml:"language"`
	Caret     int       `toml:"caret"`
	Text      string    `toml:"text,omitempty"`
}

type insertionRecord struct {
	Offset int    `toml:"offset"`
	Text   string `toml:"text"`
	Caret  int    `toml:"caret"`
}

type errorRecord struct {
	Code    string `toml:"code"`
	Message string `toml:"message"`
}

func newRecord(command string, req *codelet.Request, resp *codelet.Response) *record {
	rec := &record{
		Request: requestRecord{
			Timestamp: time.Now().UTC().Truncate(time.Second),
			Command:   command,
			ID:        req.RequestID,
			Language:  req.Language,
			Caret:     req.CursorOffset,
			Text:      req.Text,
		},
		Suggestions: resp.Suggestions,
		Content:     resp.Content,
		Archived:    resp.Archived,
	}
	if ins := resp.Insertion; ins != nil {
		rec.Insertion = &insertionRecord{Offset: ins.Offset, Text: ins.Text, Caret: ins.CursorOffset}
	}
	if e := resp.Error; e != nil {
		rec.Error = &errorRecord{Code: e.Code, Message: e.Message}
	}
	return rec
}

// writeRecord writes rec to w as a TOML document preceded by a separator comment.
func writeRecord(w io.Writer, rec *record) error {
	if _, err := fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60)); err != nil {
		return err
	}
	if err := toml.NewEncoder(w).Encode(rec); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

// ttyPresenter lists suggestions on the terminal.
type ttyPresenter struct {
	w     io.Writer
	width int // 0 means no truncation

	mu      sync.Mutex
	visible bool
}

func newTTYPresenter(w io.Writer) *ttyPresenter {
	p := &ttyPresenter{w: w}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			p.width = width
		}
	}
	return p
}

func (p *ttyPresenter) Show(suggestions []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = true
	p.list("suggestions", suggestions)
}

func (p *ttyPresenter) Update(suggestions []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.list("updated", suggestions)
}

func (p *ttyPresenter) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = false
	fmt.Fprintln(p.w, "(suggestions dismissed)")
}

func (p *ttyPresenter) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *ttyPresenter) list(title string, suggestions []string) {
	fmt.Fprintf(p.w, "%s:\n", title)
	for i, s := range suggestions {
		first, rest, multi := strings.Cut(s, "\n")
		line := fmt.Sprintf("  %d. %s", i+1, first)
		if multi {
			line += fmt.Sprintf(" (+%d lines)", strings.Count(rest, "\n")+1)
		}
		if p.width > 0 && len([]rune(line)) > p.width {
			line = string([]rune(line)[:p.width-1]) + "…"
		}
		fmt.Fprintln(p.w, line)
	}
}
