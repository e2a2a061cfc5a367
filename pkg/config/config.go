package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pocketllm/pocketllm/pkg/models"
	"gopkg.in/yaml.v3"
)

// EnvServerURL names the environment variable that overrides llm.server_url.
const EnvServerURL = "LLM_SERVER_URL"

// Config holds all PocketLLM configuration.
type Config struct {
	Listen string             `yaml:"listen"`
	DBPath string             `yaml:"db_path"`
	Log    LogConfig          `yaml:"log"`
	LLM    LLMConfig          `yaml:"llm"`
	Cache  CacheConfig        `yaml:"cache"`
	Auth   AuthConfig         `yaml:"auth"`
	Audit  models.AuditConfig `yaml:"audit"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// LLMConfig points at the inference backend. ServerURL is an optional base
// URL tried before the well-known local defaults.
type LLMConfig struct {
	ServerURL string `yaml:"server_url"`
}

// CacheConfig controls the query cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AuthConfig controls session token issuance. AdminEmails lists the accounts
// allowed to manage other users' conversations and the cache.
type AuthConfig struct {
	Secret      string        `yaml:"secret"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	AdminEmails []string      `yaml:"admin_emails"`
}

// IsAdmin reports whether email is listed in auth.admin_emails.
func (a AuthConfig) IsAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range a.AdminEmails {
		if email != "" && strings.ToLower(strings.TrimSpace(e)) == email {
			return true
		}
	}
	return false
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":3000",
		DBPath: "pocketllm.db",
		Log:    LogConfig{Level: "info"},
		Cache: CacheConfig{
			Enabled: true,
		},
		Auth: AuthConfig{
			SessionTTL: 30 * 24 * time.Hour,
		},
		Audit: models.AuditConfig{
			Enabled:       true,
			DBPath:        "pocketllm-audit.db",
			RetentionDays: 30,
			MaxDetailSize: 2048,
		},
	}
}

// Load reads a YAML config file, expands environment variables and applies
// env overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvServerURL)); v != "" {
		cfg.LLM.ServerURL = v
	}
}

// Validate checks the fields every command relies on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen cannot be empty")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db_path cannot be empty")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.LLM.ServerURL != "" {
		u, err := url.Parse(c.LLM.ServerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("llm.server_url %q is not an absolute URL", c.LLM.ServerURL)
		}
	}
	if c.Audit.Enabled {
		if strings.TrimSpace(c.Audit.DBPath) == "" {
			return errors.New("audit.db_path cannot be empty when audit is enabled")
		}
		if c.Audit.RetentionDays < 1 {
			return fmt.Errorf("audit.retention_days must be at least 1, got %d", c.Audit.RetentionDays)
		}
	}
	return nil
}

// ValidateServe additionally requires a session signing secret.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth.secret is required to serve")
	}
	return nil
}
