package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix = "SESSION_NOTES"

	defaultMaxBodyChars = 60000
	defaultMaxAttempts  = 3
	defaultGenerator    = "session-notes"
	defaultScan         = 250
	defaultLimit        = 15
	defaultPort         = 8000

	// GitHub rejects comment bodies near 65536 characters.
	maxBodyCeiling = 65000
	minBodyChars   = 1000
)

// Config holds all configuration for session-notes
type Config struct {
	GitHub   GitHubConfig   `mapstructure:"github"`
	Notes    NotesConfig    `mapstructure:"notes"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Serve    ServeConfig    `mapstructure:"serve"`
}

// GitHubConfig holds credentials and the API endpoint.
type GitHubConfig struct {
	Token      string `mapstructure:"token"`
	AppID      string `mapstructure:"app_id"`
	PrivateKey string `mapstructure:"private_key"`
	APIURL     string `mapstructure:"api_url"`
}

// NotesConfig tunes document building.
type NotesConfig struct {
	MaxBodyChars     int    `mapstructure:"max_body_chars"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	Generator        string `mapstructure:"generator"`
	GeneratorVersion string `mapstructure:"generator_version"`
}

// SessionsConfig locates local transcripts.
type SessionsConfig struct {
	CodexHome  string `mapstructure:"codex_home"`
	ClaudeHome string `mapstructure:"claude_home"`
	Scan       int    `mapstructure:"scan"`
	Limit      int    `mapstructure:"limit"`
}

// ServeConfig configures the HTTP intake.
type ServeConfig struct {
	Port          int    `mapstructure:"port"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// HasApp reports whether GitHub App credentials are configured.
func (c *Config) HasApp() bool {
	return c.GitHub.AppID != "" && c.GitHub.PrivateKey != ""
}

// SetDefaults registers every key so env overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("github.token", "")
	v.SetDefault("github.app_id", "")
	v.SetDefault("github.private_key", "")
	v.SetDefault("github.api_url", "")

	v.SetDefault("notes.max_body_chars", defaultMaxBodyChars)
	v.SetDefault("notes.max_attempts", defaultMaxAttempts)
	v.SetDefault("notes.generator", defaultGenerator)
	v.SetDefault("notes.generator_version", "")

	v.SetDefault("sessions.codex_home", filepath.Join(home, ".codex"))
	v.SetDefault("sessions.claude_home", filepath.Join(home, ".claude"))
	v.SetDefault("sessions.scan", defaultScan)
	v.SetDefault("sessions.limit", defaultLimit)

	v.SetDefault("serve.port", defaultPort)
	v.SetDefault("serve.webhook_secret", "")
}

// Init wires defaults, environment variables and the optional config file
// into v. A missing default config file is not an error; a missing explicit
// one is.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known variables shared with gh, codex and claude.
	bindings := map[string][]string{
		"github.token":         {"SESSION_NOTES_GITHUB_TOKEN", "GITHUB_TOKEN", "GH_TOKEN"},
		"github.app_id":        {"SESSION_NOTES_GITHUB_APP_ID", "GITHUB_APP_ID"},
		"github.private_key":   {"SESSION_NOTES_GITHUB_PRIVATE_KEY", "GITHUB_PRIVATE_KEY"},
		"github.api_url":       {"SESSION_NOTES_GITHUB_API_URL", "GITHUB_API_URL"},
		"sessions.codex_home":  {"SESSION_NOTES_SESSIONS_CODEX_HOME", "CODEX_HOME"},
		"sessions.claude_home": {"SESSION_NOTES_SESSIONS_CLAUDE_HOME", "CLAUDE_HOME"},
		"serve.port":           {"SESSION_NOTES_SERVE_PORT", "PORT"},
		"serve.webhook_secret": {"SESSION_NOTES_SERVE_WEBHOOK_SECRET", "SESSION_NOTES_WEBHOOK_SECRET"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load reads v into a Config, applies defaults and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.GitHub.Token = strings.TrimSpace(cfg.GitHub.Token)
	cfg.GitHub.AppID = strings.TrimSpace(cfg.GitHub.AppID)
	cfg.GitHub.PrivateKey = normalizePrivateKey(cfg.GitHub.PrivateKey)
	cfg.Sessions.CodexHome = expandHome(cfg.Sessions.CodexHome)
	cfg.Sessions.ClaudeHome = expandHome(cfg.Sessions.ClaudeHome)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigDir returns the directory holding config.yaml.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "session-notes")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".session-notes"
	}
	return filepath.Join(home, ".config", "session-notes")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func normalizePrivateKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"") {
		trimmed = strings.TrimPrefix(trimmed, "\"")
		trimmed = strings.TrimSuffix(trimmed, "\"")
	}
	if strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'") {
		trimmed = strings.TrimPrefix(trimmed, "'")
		trimmed = strings.TrimSuffix(trimmed, "'")
	}

	trimmed = strings.ReplaceAll(trimmed, "\r\n", "\n")
	trimmed = strings.ReplaceAll(trimmed, "\r", "\n")
	if strings.Contains(trimmed, "\\n") {
		trimmed = strings.ReplaceAll(trimmed, "\\r", "")
		trimmed = strings.ReplaceAll(trimmed, "\\n", "\n")
	}

	return trimmed
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// validate checks values after defaults are applied
func (c *Config) validate() error {
	c.applyDefaults()

	if err := c.validateGitHubCredentials(); err != nil {
		return err
	}
	return c.validateLimits()
}

func (c *Config) applyDefaults() {
	if c.Notes.MaxBodyChars <= 0 {
		c.Notes.MaxBodyChars = defaultMaxBodyChars
	}
	if c.Notes.MaxAttempts <= 0 {
		c.Notes.MaxAttempts = defaultMaxAttempts
	}
	if strings.TrimSpace(c.Notes.Generator) == "" {
		c.Notes.Generator = defaultGenerator
	}
	if c.Sessions.Scan <= 0 {
		c.Sessions.Scan = defaultScan
	}
	if c.Sessions.Limit <= 0 {
		c.Sessions.Limit = defaultLimit
	}
	if c.Serve.Port == 0 {
		c.Serve.Port = defaultPort
	}
}

func (c *Config) validateGitHubCredentials() error {
	if c.GitHub.AppID != "" && c.GitHub.PrivateKey == "" {
		return fmt.Errorf("GITHUB_PRIVATE_KEY is required when GITHUB_APP_ID is set")
	}
	if c.GitHub.PrivateKey != "" && c.GitHub.AppID == "" {
		return fmt.Errorf("GITHUB_APP_ID is required when GITHUB_PRIVATE_KEY is set")
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Notes.MaxBodyChars < minBodyChars || c.Notes.MaxBodyChars > maxBodyCeiling {
		return fmt.Errorf("notes.max_body_chars must be between %d and %d, got %d", minBodyChars, maxBodyCeiling, c.Notes.MaxBodyChars)
	}
	if c.Notes.MaxAttempts > 10 {
		return fmt.Errorf("notes.max_attempts must be at most 10, got %d", c.Notes.MaxAttempts)
	}
	if c.Serve.Port < 1 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve.port must be between 1 and 65535, got %d", c.Serve.Port)
	}
	return nil
}

// ValidateServe checks settings only the HTTP intake needs.
func (c *Config) ValidateServe() error {
	if c.Serve.WebhookSecret == "" {
		return fmt.Errorf("SESSION_NOTES_WEBHOOK_SECRET is required for serve")
	}
	return nil
}

// Redacted returns the settings as a nested map with secrets masked.
func (c *Config) Redacted() map[string]map[string]any {
	return map[string]map[string]any{
		"github": {
			"token":       mask(c.GitHub.Token),
			"app_id":      c.GitHub.AppID,
			"private_key": mask(c.GitHub.PrivateKey),
			"api_url":     c.GitHub.APIURL,
		},
		"notes": {
			"max_body_chars":    c.Notes.MaxBodyChars,
			"max_attempts":      c.Notes.MaxAttempts,
			"generator":         c.Notes.Generator,
			"generator_version": c.Notes.GeneratorVersion,
		},
		"sessions": {
			"codex_home":  c.Sessions.CodexHome,
			"claude_home": c.Sessions.ClaudeHome,
			"scan":        c.Sessions.Scan,
			"limit":       c.Sessions.Limit,
		},
		"serve": {
			"port":           c.Serve.Port,
			"webhook_secret": mask(c.Serve.WebhookSecret),
		},
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
