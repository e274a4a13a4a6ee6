// Package redact masks credential-looking values in source text before it
// is sent to a model.
package redact

import (
	"regexp"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Mask replaces every redacted value.
const Mask = "***"

// safeVars are environment variables that are never masked.
var safeVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "LOGNAME": true,
	"TMPDIR": true, "XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true,
	"XDG_RUNTIME_DIR": true, "DISPLAY": true, "WAYLAND_DISPLAY": true,
	"HISTFILE": true, "HISTSIZE": true, "SHLVL": true,
	"COLUMNS": true, "LINES": true, "LC_ALL": true, "LC_CTYPE": true,
}

// sensitiveWords are matched against lowercased names with separators removed.
var sensitiveWords = []string{
	"password", "passwd", "secret", "token", "apikey", "credential",
	"privatekey", "accesskey", "auth",
}

// Sensitive reports whether a variable or key name looks like it holds a credential.
func Sensitive(name string) bool {
	if safeVars[name] {
		return false
	}
	norm := strings.ToLower(name)
	norm = strings.NewReplacer("_", "", "-", "", ".", "").Replace(norm)
	if strings.HasSuffix(norm, "pass") || norm == "pw" {
		return true
	}
	for _, w := range sensitiveWords {
		if strings.Contains(norm, w) {
			if w == "auth" && strings.Contains(norm, "author") && !strings.Contains(norm, "authoriz") {
				continue
			}
			return true
		}
	}
	return false
}

// IsShell reports whether language names a shell dialect.
func IsShell(language string) bool {
	switch strings.ToLower(strings.TrimPrefix(language, ".")) {
	case "sh", "bash", "zsh", "ksh", "mksh", "shell", "shellscript":
		return true
	}
	return false
}

// Source masks sensitive values in text written in language.
// Shell text is parsed so only real assignments are touched; text that
// does not parse and other languages use pattern matching.
func Source(language, text string) string {
	if text == "" {
		return text
	}
	if IsShell(language) {
		if out, ok := shellRedact(text); ok {
			return out
		}
	}
	return regexRedact(text)
}

type span struct{ start, end int }

// shellRedact masks values of sensitive assignments, keeping all other
// bytes untouched. It reports false when text is not valid shell.
func shellRedact(text string) (string, bool) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(text), "")
	if err != nil {
		return "", false
	}

	var spans []span
	syntax.Walk(prog, func(node syntax.Node) bool {
		n, ok := node.(*syntax.Assign)
		if !ok || n.Name == nil || n.Value == nil || !Sensitive(n.Name.Value) {
			return true
		}
		start, end := int(n.Value.Pos().Offset()), int(n.Value.End().Offset())
		if start < end && end <= len(text) {
			spans = append(spans, span{start, end})
		}
		return true
	})
	if len(spans) == 0 {
		return text, true
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	var sb strings.Builder
	sb.Grow(len(text))
	last := 0
	for _, s := range spans {
		if s.start < last {
			continue
		}
		sb.WriteString(text[last:s.start])
		sb.WriteString(Mask)
		last = s.end
	}
	sb.WriteString(text[last:])
	return sb.String(), true
}

var (
	// key = "value", key: 'value', "key": "value", key := `value`
	reQuoted = regexp.MustCompile("([A-Za-z_][A-Za-z0-9_.-]*)([\"']?[ \\t]*(?::=|=|:)[ \\t]*)(\"[^\"\\n]*\"|'[^'\\n]*'|`[^`\\n]*`)")
	// KEY=value and key: value running to end of line
	reBare = regexp.MustCompile("(?m)^([ \\t]*(?:export[ \\t]+)?)([A-Za-z_][A-Za-z0-9_.-]*)([ \\t]*[:=][ \\t]*)([^\\s\"'`=][^\\n]*)$")
)

// regexRedact masks quoted values and whole-line bare values of sensitive keys.
func regexRedact(text string) string {
	text = reQuoted.ReplaceAllStringFunc(text, func(m string) string {
		parts := reQuoted.FindStringSubmatch(m)
		if !Sensitive(parts[1]) {
			return m
		}
		quote := parts[3][:1]
		return parts[1] + parts[2] + quote + Mask + quote
	})
	text = reBare.ReplaceAllStringFunc(text, func(m string) string {
		parts := reBare.FindStringSubmatch(m)
		if !Sensitive(parts[2]) || strings.HasPrefix(parts[4], Mask) {
			return m
		}
		return parts[1] + parts[2] + parts[3] + Mask
	})
	return text
}
