// Package config provides YAML-based configuration loading for Signoff.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Signoff configuration, loaded from signoff.yaml.
type Config struct {
	DataDir       string              `yaml:"data_dir"`
	Documents     DocumentsConfig     `yaml:"documents"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Database      DatabaseConfig      `yaml:"database"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	LLM           LLMConfig           `yaml:"llm"`
	Directory     DirectoryConfig     `yaml:"directory"`
	API           APIConfig           `yaml:"api"`
	Reminders     RemindersConfig     `yaml:"reminders"`
	Log           LogConfig           `yaml:"log"`
}

// DocumentsConfig controls where document content is looked up.
type DocumentsConfig struct {
	BaseDir      string   `yaml:"base_dir"`
	FallbackDirs []string `yaml:"fallback_dirs"`
}

// NotificationsConfig bounds the notification queue.
type NotificationsConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// DatabaseConfig selects the gorm backend for session flags and the
// approval audit trail.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// GatewayConfig selects and configures the chat platform.
type GatewayConfig struct {
	Platform         string        `yaml:"platform"` // "slack", "discord" or "none"
	TypingIntervalMs int           `yaml:"typing_interval_ms"`
	Slack            SlackConfig   `yaml:"slack"`
	Discord          DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// LLMConfig configures the summarization/question-answering model.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "openai", "anthropic" or "none"
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

// DirectoryConfig configures the identity-to-email directory service.
// Leaving TokenURL empty disables the lookup. Static entries map chat
// identities to emails and are consulted before any other source.
type DirectoryConfig struct {
	TokenURL     string            `yaml:"token_url"`
	ClientID     string            `yaml:"client_id"`
	ClientSecret string            `yaml:"client_secret"`
	UserURL      string            `yaml:"user_url"` // e.g. https://graph.microsoft.com/v1.0/users/{id}
	Scopes       []string          `yaml:"scopes"`
	Static       map[string]string `yaml:"static"`
}

// Enabled reports whether a directory service is configured.
func (d DirectoryConfig) Enabled() bool { return d.TokenURL != "" }

// APIConfig configures the injection HTTP API.
type APIConfig struct {
	Port int `yaml:"port"`
}

// RemindersConfig configures the periodic pending-approvals reminder.
type RemindersConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references and unmarshals YAML bytes into a
// validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv replaces ${VAR} with the environment value. Bare $VAR is left
// alone.
func expandEnv(s string) string {
	return envRefRe.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envRefRe.FindStringSubmatch(m)[1])
	})
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Documents.BaseDir == "" {
		c.Documents.BaseDir = "."
	}
	if c.Notifications.MaxEntries == 0 {
		c.Notifications.MaxEntries = 200
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "signoff.db")
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "signoff"
		}
	}
	if c.Gateway.Platform == "" {
		c.Gateway.Platform = "slack"
	}
	if c.Gateway.TypingIntervalMs == 0 {
		c.Gateway.TypingIntervalMs = 3000
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.Model = "gpt-4o-mini"
		case "anthropic":
			c.LLM.Model = "claude-3-5-haiku-latest"
		}
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Reminders.Cron == "" {
		c.Reminders.Cron = "0 9 * * 1-5"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	if c.Notifications.MaxEntries < 0 {
		errs = append(errs, "notifications.max_entries must be >= 0")
	}

	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or mysql, got %q", c.Database.Driver))
	}

	switch c.Gateway.Platform {
	case "slack":
		if c.Gateway.Slack.AppToken == "" {
			errs = append(errs, "gateway.slack.app_token is required")
		} else if !strings.HasPrefix(c.Gateway.Slack.AppToken, "xapp-") {
			errs = append(errs, "gateway.slack.app_token must start with xapp-")
		}
		if c.Gateway.Slack.BotToken == "" {
			errs = append(errs, "gateway.slack.bot_token is required")
		}
	case "discord":
		if c.Gateway.Discord.BotToken == "" {
			errs = append(errs, "gateway.discord.bot_token is required")
		}
	case "none":
	default:
		errs = append(errs, fmt.Sprintf("gateway.platform must be slack, discord or none, got %q", c.Gateway.Platform))
	}
	if c.Gateway.TypingIntervalMs < 0 {
		errs = append(errs, "gateway.typing_interval_ms must be >= 0")
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
		if c.LLM.APIKey == "" {
			errs = append(errs, "llm.api_key is required")
		}
	case "none":
	default:
		errs = append(errs, fmt.Sprintf("llm.provider must be openai, anthropic or none, got %q", c.LLM.Provider))
	}

	if c.Directory.Enabled() {
		if c.Directory.ClientID == "" {
			errs = append(errs, "directory.client_id is required")
		}
		if c.Directory.ClientSecret == "" {
			errs = append(errs, "directory.client_secret is required")
		}
		if !strings.Contains(c.Directory.UserURL, "{id}") {
			errs = append(errs, "directory.user_url must contain {id}")
		}
	}

	for id, email := range c.Directory.Static {
		if !strings.Contains(email, "@") {
			errs = append(errs, fmt.Sprintf("directory.static[%s]: %q is not an email address", id, email))
		}
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port out of range: %d", c.API.Port))
	}

	if c.Reminders.Enabled {
		if _, err := cron.ParseStandard(c.Reminders.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("reminders.cron invalid: %v", err))
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or console, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DocumentsPath returns the documents collection file.
func (c *Config) DocumentsPath() string { return filepath.Join(c.DataDir, "documents.json") }

// NotificationsPath returns the notification queue file.
func (c *Config) NotificationsPath() string {
	return filepath.Join(c.DataDir, "notifications.json")
}

// ConversationsPath returns the conversation directory file.
func (c *Config) ConversationsPath() string {
	return filepath.Join(c.DataDir, "conversations.json")
}
