// Package defaults provides embedded default assets (prompt templates and config).
package defaults

import _ "embed"

//go:embed completion_prompt.md
var CompletionPrompt string

//go:embed explain_prompt.md
var ExplainPrompt string

//go:embed chat_prompt.md
var ChatPrompt string

//go:embed default_config.toml
var DefaultConfigTOML string
