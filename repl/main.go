// Command codelet-repl is an interactive test host for the codelet engine.
// It keeps a document buffer and a caret, drives completions, explanations
// and chat against it, and writes structured TOML records to stdout.
//
// Usage:
//
//	./codelet-repl -f main.go              # interactive, TOML on screen
//	./codelet-repl -f main.go > log.toml   # prompt on stderr, TOML to file
//	./codelet-repl -l go < script.txt      # replay commands from a file
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Paranoid-AF/codelet/generate"
)

const prompt = "> "

func main() {
	file := flag.StringP("file", "f", "", "load the buffer from this file")
	lang := flag.StringP("lang", "l", "", "language id (default: file extension)")
	offset := flag.Int("offset", -1, "initial caret offset (default: end of buffer)")
	verbose := flag.BoolP("verbose", "v", false, "log prompts and model traffic to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var buffer string
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		buffer = string(data)
	}
	language := *lang
	if language == "" {
		language = strings.TrimPrefix(filepath.Ext(*file), ".")
	}

	engine := generate.NewEngine()
	defer engine.Close()

	tty := os.Stderr
	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	h := newHost(engine, language, buffer, tty)
	defer h.close()
	h.file = *file
	if *offset >= 0 {
		h.setCaret(*offset)
	}

	if interactive {
		fmt.Fprintf(tty, "codelet repl\n")
		fmt.Fprintf(tty, "language: %s, %d bytes, caret at %d\n", language, len(buffer), h.caret)
		if !engine.Configured() {
			fmt.Fprintf(tty, "warning: no API key configured, requests will fail\n")
		}
		fmt.Fprintf(tty, "type :help for commands\n\n")
	}

	run(os.Stdin, os.Stdout, h, interactive)
}

// run reads commands from r until EOF or :quit and writes a record per
// request to out.
func run(r io.Reader, out io.Writer, h *host, interactive bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if interactive {
			fmt.Fprint(h.tty, prompt)
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		rec, quit, err := h.exec(line)
		if err != nil {
			fmt.Fprintf(h.tty, "error: %v\n", err)
			continue
		}
		if quit {
			break
		}
		if rec == nil {
			continue
		}
		h.summarize(rec)
		if err := writeRecord(out, rec); err != nil {
			slog.Warn("failed to write record", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(h.tty, "read error: %v\n", err)
	}
}
