package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/foxzi/broadcast/internal/group"
)

// EnvWebhookURL overrides webhook.url when set
const EnvWebhookURL = "BROADCAST_WEBHOOK_URL"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Webhook WebhookConfig `yaml:"webhook"`
	Groups  []group.Group `yaml:"groups"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	History HistoryConfig `yaml:"history"`
}

type ServerConfig struct {
	ListenAddr     string    `yaml:"listen_addr"`
	TLS            TLSConfig `yaml:"tls"`
	TrustedOrigins []string  `yaml:"trusted_origins"`

	// AllowedIPs limits the form and API to these IPs/CIDRs. Empty allows all.
	AllowedIPs []string `yaml:"allowed_ips"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type WebhookConfig struct {
	URL string `yaml:"url"`
	// Timeout of zero keeps the transport defaults
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

type AuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	CSRFKey      string `yaml:"csrf_key"`
}

// Enabled reports whether the form is protected by basic auth
func (a AuthConfig) Enabled() bool {
	return a.Username != ""
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"`
	Path       string   `yaml:"path"`
	AllowedIPs []string `yaml:"allowed_ips"`
}

type HistoryConfig struct {
	// Path of the bbolt journal. Empty disables history.
	Path string `yaml:"path"`
}

// Enabled reports whether submission history is recorded
func (h HistoryConfig) Enabled() bool {
	return h.Path != ""
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and defaults, and validates
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv(EnvWebhookURL); v != "" {
		cfg.Webhook.URL = v
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Catalog builds the group catalog from the configured groups
func (c *Config) Catalog() (*group.Catalog, error) {
	return group.NewCatalog(c.Groups)
}

// CSRFKeyBytes decodes the configured CSRF key; nil when not set
func (c *Config) CSRFKeyBytes() []byte {
	if c.Auth.CSRFKey == "" {
		return nil
	}
	key, err := hex.DecodeString(c.Auth.CSRFKey)
	if err != nil {
		return nil
	}
	return key
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required")
	}
	u, err := url.Parse(cfg.Webhook.URL)
	if err != nil {
		return fmt.Errorf("webhook.url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook.url must be an absolute http(s) URL")
	}
	if cfg.Webhook.Timeout < 0 {
		return fmt.Errorf("webhook.timeout must not be negative")
	}

	if _, err := group.NewCatalog(cfg.Groups); err != nil {
		return fmt.Errorf("groups: %w", err)
	}

	if cfg.Auth.Enabled() {
		if cfg.Auth.PasswordHash == "" {
			return fmt.Errorf("auth.password_hash is required when auth.username is set")
		}
		if _, err := bcrypt.Cost([]byte(cfg.Auth.PasswordHash)); err != nil {
			return fmt.Errorf("auth.password_hash is not a bcrypt hash: %w", err)
		}
	}
	if cfg.Auth.CSRFKey != "" {
		key, err := hex.DecodeString(cfg.Auth.CSRFKey)
		if err != nil {
			return fmt.Errorf("auth.csrf_key must be hex encoded: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("auth.csrf_key must be 32 bytes (64 hex characters)")
		}
	}

	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
		}
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}

	return nil
}
