package codelet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	defaults "github.com/Paranoid-AF/codelet/default"
)

// Config represents the user's codelet configuration.
type Config struct {
	Version    int              `toml:"version" json:"version"`
	Generation GenerationConfig `toml:"generation" json:"generation"`
	Completion CompletionConfig `toml:"completion" json:"completion"`
	Chat       Sampling         `toml:"chat" json:"chat"`
	Explain    ExplainConfig    `toml:"explain" json:"explain"`
	Archive    ArchiveConfig    `toml:"archive" json:"archive"`

	// undecoded lists keys present in the file that no field consumed.
	undecoded []string
}

// GenerationConfig holds settings for the generation API transport.
type GenerationConfig struct {
	BaseURL        string `toml:"base_url" json:"base_url"`
	Endpoint       string `toml:"endpoint" json:"endpoint"`
	APIKey         string `toml:"api_key" json:"api_key,omitempty"`
	APIType        string `toml:"api_type" json:"api_type"`
	TimeoutSeconds int    `toml:"timeout_seconds" json:"timeout_seconds"`
	HistoryCap     int    `toml:"history_cap" json:"history_cap"`
}

// Sampling holds the per-mode model and sampling parameters.
type Sampling struct {
	Model            string  `toml:"model" json:"model"`
	MaxTokens        int     `toml:"max_tokens" json:"max_tokens"`
	Temperature      float64 `toml:"temperature" json:"temperature"`
	TopP             float64 `toml:"top_p" json:"top_p"`
	PresencePenalty  float64 `toml:"presence_penalty" json:"presence_penalty"`
	FrequencyPenalty float64 `toml:"frequency_penalty" json:"frequency_penalty"`
	Seed             *int    `toml:"seed" json:"seed,omitempty"`
}

// CompletionConfig holds inline completion settings.
type CompletionConfig struct {
	Sampling
	WindowBefore   int     `toml:"window_before" json:"window_before"`
	WindowAfter    int     `toml:"window_after" json:"window_after"`
	CursorMarker   string  `toml:"cursor_marker" json:"cursor_marker"`
	Strategy       string  `toml:"strategy" json:"strategy"`
	MaxSuggestions int     `toml:"max_suggestions" json:"max_suggestions"`
	Redact         *bool   `toml:"redact" json:"redact,omitempty"`
	MaxRate        float64 `toml:"max_rate" json:"max_rate"`
	Burst          int     `toml:"burst" json:"burst"`
}

// ExplainConfig holds inline explanation settings.
type ExplainConfig struct {
	Sampling
	MaxChars   int `toml:"max_chars" json:"max_chars"`
	TTLMinutes int `toml:"ttl_minutes" json:"ttl_minutes"`
}

// ArchiveConfig controls archival of discarded conversation tails.
type ArchiveConfig struct {
	Enabled *bool  `toml:"enabled" json:"enabled,omitempty"`
	Path    string `toml:"path" json:"path,omitempty"`
}

// ConfigDir returns the config directory path.
// Resolution order: $CODELET_CONFIG_DIR > $XDG_CONFIG_HOME/codelet > ~/.config/codelet
func ConfigDir() string {
	if dir := os.Getenv("CODELET_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "codelet")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "codelet-config")
	}
	return filepath.Join(home, ".config", "codelet")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// PromptPath returns the path of a custom prompt template, e.g. PromptPath("completion").
func PromptPath(kind string) string {
	return filepath.Join(ConfigDir(), kind+"_prompt.md")
}

// ArchivePath returns the conversation archive database path.
func ArchivePath(cfg *Config) string {
	if cfg != nil && cfg.Archive.Path != "" {
		return cfg.Archive.Path
	}
	return filepath.Join(ConfigDir(), "archive.db")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(defaults.DefaultConfigTOML, &cfg); err != nil {
		panic("codelet: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
// Values in the file overlay the embedded defaults.
func LoadConfig() (*Config, error) {
	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return ParseConfig(string(data))
}

// ParseConfig decodes TOML config text on top of the defaults.
func ParseConfig(data string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range md.Undecoded() {
		cfg.undecoded = append(cfg.undecoded, key.String())
	}
	return cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	for _, key := range cfg.undecoded {
		warnings = append(warnings, "unknown config key: "+key)
	}
	if ResolveAPIKey(cfg) == "" {
		warnings = append(warnings, "api key is not configured; set CODELET_API_KEY or generation.api_key")
	}
	switch ResolveAPIType(cfg) {
	case "http", "openai":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown generation.api_type %q; expected \"http\" or \"openai\"", cfg.Generation.APIType))
	}
	switch cfg.Completion.Strategy {
	case "line", "prefix", "both":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown completion.strategy %q; expected \"line\", \"prefix\" or \"both\"", cfg.Completion.Strategy))
	}
	if cfg.Generation.HistoryCap < 2 {
		warnings = append(warnings, "generation.history_cap below 2 leaves no room for the user message")
	}
	return warnings
}

// ResolveBaseURL returns the generation API base URL.
// Priority: $CODELET_BASE_URL env > config value.
func ResolveBaseURL(cfg *Config) string {
	if url := os.Getenv("CODELET_BASE_URL"); url != "" {
		return strings.TrimRight(url, "/")
	}
	if cfg != nil {
		return strings.TrimRight(cfg.Generation.BaseURL, "/")
	}
	return ""
}

// ResolveAPIKey returns the generation API key.
// Priority: $CODELET_API_KEY env > config value. There is no built-in fallback.
func ResolveAPIKey(cfg *Config) string {
	if key := os.Getenv("CODELET_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Generation.APIKey
	}
	return ""
}

// ResolveAPIType returns the transport kind, "http" or "openai".
// Priority: $CODELET_API_TYPE env > config value.
func ResolveAPIType(cfg *Config) string {
	if t := os.Getenv("CODELET_API_TYPE"); t != "" {
		return t
	}
	if cfg != nil && cfg.Generation.APIType != "" {
		return cfg.Generation.APIType
	}
	return "http"
}

// ResolveModel returns the model for the given sampling section.
// Priority: $CODELET_MODEL env > section value.
func ResolveModel(s Sampling) string {
	if model := os.Getenv("CODELET_MODEL"); model != "" {
		return model
	}
	return s.Model
}

// RedactEnabled reports whether context redaction runs before dispatch.
func RedactEnabled(cfg *Config) bool {
	if cfg == nil || cfg.Completion.Redact == nil {
		return true // default true
	}
	return *cfg.Completion.Redact
}

// ArchiveEnabled reports whether discarded conversation tails are archived.
func ArchiveEnabled(cfg *Config) bool {
	if cfg == nil || cfg.Archive.Enabled == nil {
		return false
	}
	return *cfg.Archive.Enabled
}
