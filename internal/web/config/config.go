package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Session SessionConfig `yaml:"session"`
	Auth    AuthConfig    `yaml:"auth"`
	Compose ComposeConfig `yaml:"compose"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string    `yaml:"listen_addr"`
	TLS        TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// BackendConfig points at the castMail API
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	Secret       string        `yaml:"secret"`
	TTL          time.Duration `yaml:"ttl"`
	MaxSessions  int           `yaml:"max_sessions"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

// AuthConfig enables the optional panel login. An empty hash disables it.
type AuthConfig struct {
	PasswordHash string `yaml:"password_hash"`
}

// Enabled reports whether the panel requires a password
func (a AuthConfig) Enabled() bool {
	return a.PasswordHash != ""
}

type ComposeConfig struct {
	MaxAttachmentBytes int64  `yaml:"max_attachment_bytes"`
	MaxAttachments     int    `yaml:"max_attachments"`
	DefaultSubject     string `yaml:"default_subject"`
	DefaultBody        string `yaml:"default_body"`
}

type HistoryConfig struct {
	Path  string `yaml:"path"`
	Limit int    `yaml:"limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file, applies a .env file and CASTMAIL_* environment
// overrides, fills defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}
	applyEnv(cfg)

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := lookupEnv("CASTMAIL_LISTEN_ADDR"); ok {
		cfg.Server.ListenAddr = v
	}
	if v, ok := lookupEnv("CASTMAIL_BACKEND_URL"); ok {
		cfg.Backend.BaseURL = v
	}
	if v, ok := lookupEnv("CASTMAIL_SESSION_SECRET"); ok {
		cfg.Session.Secret = v
	}
	if v, ok := lookupEnv("CASTMAIL_LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := lookupEnv("CASTMAIL_HISTORY_PATH"); ok {
		cfg.History.Path = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.MaxSessions == 0 {
		cfg.Session.MaxSessions = 1000
	}
	if cfg.Compose.MaxAttachmentBytes == 0 {
		cfg.Compose.MaxAttachmentBytes = 20 << 20
	}
	if cfg.Compose.MaxAttachments == 0 {
		cfg.Compose.MaxAttachments = 10
	}
	if cfg.History.Path == "" {
		cfg.History.Path = "/var/lib/castmail-web/history.db"
	}
	if cfg.History.Limit == 0 {
		cfg.History.Limit = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute http(s) URL")
	}
	if cfg.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	if len(cfg.Session.Secret) < 32 {
		return fmt.Errorf("session.secret must be at least 32 characters")
	}
	if cfg.Auth.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.Auth.PasswordHash)); err != nil {
			return fmt.Errorf("auth.password_hash is not a bcrypt hash: %w", err)
		}
	}
	if cfg.Compose.MaxAttachmentBytes < 0 {
		return fmt.Errorf("compose.max_attachment_bytes must not be negative")
	}
	if cfg.Compose.MaxAttachments < 0 {
		return fmt.Errorf("compose.max_attachments must not be negative")
	}
	if cfg.Server.TLS.Enabled && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	return nil
}
