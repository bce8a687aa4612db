// ABOUTME: Configuration loading and parsing for ember-chat
// ABOUTME: Supports YAML files with environment variable expansion

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/ember-chat/internal/anthropic"
	"github.com/2389/ember-chat/internal/auth"
	"github.com/2389/ember-chat/internal/chat"
)

// Config represents the complete ember-chat configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Chat      ChatConfig      `yaml:"chat"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds storage backend configuration.
// Backend is "sqlite" (default) or "memory"; Path is required for sqlite.
type DatabaseConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AnthropicConfig holds model API configuration
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	BaseURL   string `yaml:"base_url"`
}

// ChatConfig holds turn behavior configuration. Temperature is the default
// applied when a request omits one; nil keeps the chat package default.
type ChatConfig struct {
	SystemPrompt string   `yaml:"system_prompt"`
	MaxRounds    int      `yaml:"max_rounds"`
	Temperature  *float64 `yaml:"temperature"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	SessionDuration time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	SessionDurationRaw string `yaml:"session_duration"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultSystemPrompt is used when chat.system_prompt is not configured
const DefaultSystemPrompt = "You are a helpful assistant. Keep answers concise and use plain language."

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in optional fields
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Database.Backend == "" {
		c.Database.Backend = "sqlite"
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = anthropic.DefaultModel
	}
	if c.Anthropic.MaxTokens == 0 {
		c.Anthropic.MaxTokens = anthropic.DefaultMaxTokens
	}
	if c.Chat.SystemPrompt == "" {
		c.Chat.SystemPrompt = DefaultSystemPrompt
	}
	if c.Chat.MaxRounds == 0 {
		c.Chat.MaxRounds = chat.DefaultMaxRounds
	}
	if c.Auth.SessionDuration == 0 {
		c.Auth.SessionDuration = auth.DefaultSessionDuration
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Auth.SessionDurationRaw != "" {
		var err error
		cfg.Auth.SessionDuration, err = time.ParseDuration(cfg.Auth.SessionDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing session_duration %q: %w", cfg.Auth.SessionDurationRaw, err)
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite backend")
		}
	case "memory":
		// No path needed
	default:
		return fmt.Errorf("database.backend must be \"sqlite\" or \"memory\", got %q", c.Database.Backend)
	}

	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic.api_key is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Anthropic.MaxTokens < 0 {
		return fmt.Errorf("anthropic.max_tokens must be positive")
	}

	if c.Chat.MaxRounds < 1 {
		return fmt.Errorf("chat.max_rounds must be at least 1")
	}

	if c.Chat.Temperature != nil && (*c.Chat.Temperature < 0 || *c.Chat.Temperature > 1) {
		return fmt.Errorf("chat.temperature must be between 0 and 1")
	}

	if c.Auth.SessionDuration < 0 {
		return fmt.Errorf("auth.session_duration must be positive")
	}

	return nil
}
