package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Manager holds the loaded configuration.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	filePath string
}

// NewManager creates a Manager and loads config from the given file path.
// If the file does not exist, defaults are used. Environment variables are
// applied on top of either.
func NewManager(filePath string) (*Manager, error) {
	m := &Manager{
		filePath: filePath,
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		slog.Warn("config file not found, using defaults", "path", filePath)
		m.cfg = DefaultConfig()
	} else if err := m.load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyEnv(&m.cfg)
	m.cfg.ApplyDefaults()
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns a copy of the current config (safe for concurrent reads).
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Path is the file the config was loaded from.
func (m *Manager) Path() string {
	return m.filePath
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(m.filePath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse config JSON: %w", err)
		}
	}

	m.cfg = cfg
	return nil
}

// applyEnv overrides file settings with environment variables. Mail and SMS
// credentials keep the variable names used by existing deployments.
func applyEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		c.System.BindAddress = ":" + v
	}
	c.System.BindAddress = envOr("DOWNWATCH_BIND", c.System.BindAddress)
	c.System.LogLevel = envOr("DOWNWATCH_LOG_LEVEL", c.System.LogLevel)
	c.Storage.Driver = envOr("DOWNWATCH_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Path = envOr("DOWNWATCH_STORAGE_PATH", c.Storage.Path)
	c.Storage.DatabaseURL = envOr("DOWNWATCH_DATABASE_URL", c.Storage.DatabaseURL)

	c.Mail.Host = envOr("EMAIL_HOST", c.Mail.Host)
	if v, err := strconv.Atoi(os.Getenv("EMAIL_PORT")); err == nil && v > 0 {
		c.Mail.Port = v
	}
	c.Mail.Username = envOr("EMAIL_USER", c.Mail.Username)
	c.Mail.Password = envOr("EMAIL_PASS", c.Mail.Password)
	c.Mail.From = envOr("EMAIL_FROM", c.Mail.From)
	if c.Mail.From == "" {
		c.Mail.From = c.Mail.Username
	}

	c.SMS.AccountSID = envOr("TWILIO_SID", c.SMS.AccountSID)
	c.SMS.AuthToken = envOr("TWILIO_AUTH", c.SMS.AuthToken)
	c.SMS.FromNumber = envOr("TWILIO_PHONE", c.SMS.FromNumber)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
