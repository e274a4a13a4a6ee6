package redact

import "testing"

func TestSourceShell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple assignment", "SECRET=hunter2 cmd", "SECRET=*** cmd"},
		{"export assignment", "export API_KEY=abc123", "export API_KEY=***"},
		{"quoted value", "DB_PASSWORD=\"p@ss word\"\necho ok", "DB_PASSWORD=***\necho ok"},
		{"safe var assignment", "HOME=/home/user cmd", "HOME=/home/user cmd"},
		{"non-sensitive assignment", "COUNT=3", "COUNT=3"},
		{"references untouched", "curl -H \"Bearer $GITHUB_TOKEN\"", "curl -H \"Bearer $GITHUB_TOKEN\""},
		{"formatting kept", "if true; then\n    TOKEN=abc   # set\nfi\n", "if true; then\n    TOKEN=***   # set\nfi\n"},
		{"local decl", "f() {\n  local auth_token=xyz\n}", "f() {\n  local auth_token=***\n}"},
		{"empty string", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Source("bash", tt.input)
			if got != tt.want {
				t.Errorf("Source(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSourceShellParseFailureFallsBack(t *testing.T) {
	// Unterminated quote: the window may cut a script anywhere.
	got := Source("sh", "API_KEY=abc123\necho \"unterminated")
	want := "API_KEY=***\necho \"unterminated"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSourceOtherLanguages(t *testing.T) {
	tests := []struct {
		name  string
		lang  string
		input string
		want  string
	}{
		{"go const", "go", `const apiKey = "sk-123"`, `const apiKey = "***"`},
		{"go short decl", "go", "token := `abc`", "token := `***`"},
		{"go expression untouched", "go", "token := lexer.Next()", "token := lexer.Next()"},
		{"comparison untouched", "python", "if password == other:", "if password == other:"},
		{"python single quotes", "python", "SECRET_KEY = 'xyz'", "SECRET_KEY = '***'"},
		{"json", "json", `{"client_secret": "abc", "name": "x"}`, `{"client_secret": "***", "name": "x"}`},
		{"yaml bare", "yaml", "db:\n  password: hunter2\n  host: localhost", "db:\n  password: ***\n  host: localhost"},
		{"dotenv", "", "export AWS_ACCESS_KEY_ID=AKIA123\nREGION=us-east-1", "export AWS_ACCESS_KEY_ID=***\nREGION=us-east-1"},
		{"author is not auth", "go", `author := "jane"`, `author := "jane"`},
		{"plain code", "go", "x := 1", "x := 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Source(tt.lang, tt.input)
			if got != tt.want {
				t.Errorf("Source(%q, %q) = %q, want %q", tt.lang, tt.input, got, tt.want)
			}
		})
	}
}

func TestSensitive(t *testing.T) {
	for _, name := range []string{"PASSWORD", "db_pass", "pass", "GITHUB_TOKEN", "api-key", "ClientSecret", "Authorization", "private_key"} {
		if !Sensitive(name) {
			t.Errorf("expected %q to be sensitive", name)
		}
	}
	for _, name := range []string{"PATH", "HOME", "author", "count", "name", "USER"} {
		if Sensitive(name) {
			t.Errorf("expected %q not to be sensitive", name)
		}
	}
}

func TestIsShell(t *testing.T) {
	for _, lang := range []string{"sh", "bash", ".zsh", "Shell"} {
		if !IsShell(lang) {
			t.Errorf("expected %q to be a shell", lang)
		}
	}
	if IsShell("go") {
		t.Error("go is not a shell")
	}
}
