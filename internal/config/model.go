package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const CurrentConfigVersion = 1

// Config is the root configuration structure loaded from config.json or config.yaml.
type Config struct {
	Version   int              `json:"version" yaml:"version"`
	System    SystemConfig     `json:"system" yaml:"system"`
	Storage   StorageConfig    `json:"storage" yaml:"storage"`
	Mail      MailConfig       `json:"mail" yaml:"mail"`
	SMS       SMSConfig        `json:"sms" yaml:"sms"`
	Notifiers []NotifierConfig `json:"notifiers" yaml:"notifiers"`
}

type SystemConfig struct {
	BindAddress    string   `json:"bind_address" yaml:"bind_address"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
	Timezone       string   `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	ProbeTimeout   int      `json:"probe_timeout" yaml:"probe_timeout"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver" yaml:"driver"`
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
}

type MailConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	From     string `json:"from" yaml:"from"`
}

// Enabled reports whether enough is configured to attempt delivery.
func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.From != ""
}

type SMSConfig struct {
	AccountSID string `json:"account_sid" yaml:"account_sid"`
	AuthToken  string `json:"auth_token" yaml:"auth_token"`
	FromNumber string `json:"from_number" yaml:"from_number"`
}

func (s SMSConfig) Enabled() bool {
	return s.AccountSID != "" && s.AuthToken != "" && s.FromNumber != ""
}

// NotifierConfig describes an operator-level channel that receives every DOWN alert.
type NotifierConfig struct {
	ID       string `json:"id" yaml:"id"`
	Type     string `json:"type" yaml:"type"`
	Remark   string `json:"remark,omitempty" yaml:"remark,omitempty"`
	BotToken string `json:"bot_token,omitempty" yaml:"bot_token,omitempty"`
	ChatID   string `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Method   string `json:"method,omitempty" yaml:"method,omitempty"`
}

// ProbeTimeoutDuration returns the configured probe timeout.
func (s SystemConfig) ProbeTimeoutDuration() time.Duration {
	return time.Duration(s.ProbeTimeout) * time.Second
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version: CurrentConfigVersion,
		System: SystemConfig{
			BindAddress:  ":5000",
			LogLevel:     "info",
			Timezone:     detectTimezone(),
			ProbeTimeout: 5,
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   "monitors.json",
		},
		Mail: MailConfig{
			Port: 587,
		},
		Notifiers: []NotifierConfig{},
	}
}

// ApplyDefaults fills zero-value fields with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Version == 0 {
		c.Version = CurrentConfigVersion
	}
	if c.System.BindAddress == "" {
		c.System.BindAddress = d.System.BindAddress
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = d.System.LogLevel
	}
	if c.System.Timezone == "" {
		c.System.Timezone = detectTimezone()
	}
	if c.System.ProbeTimeout <= 0 {
		c.System.ProbeTimeout = d.System.ProbeTimeout
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case "sqlite":
			c.Storage.Path = "downwatch.db"
		case "file":
			c.Storage.Path = d.Storage.Path
		}
	}
	if c.Mail.Port <= 0 {
		c.Mail.Port = d.Mail.Port
	}
	if c.Notifiers == nil {
		c.Notifiers = []NotifierConfig{}
	}
	for i := range c.Notifiers {
		if c.Notifiers[i].ID == "" {
			c.Notifiers[i].ID = fmt.Sprintf("%s-%d", c.Notifiers[i].Type, i+1)
		}
		if c.Notifiers[i].Type == "webhook" && c.Notifiers[i].Method == "" {
			c.Notifiers[i].Method = "POST"
		}
	}
}

// detectTimezone returns the system's IANA timezone name, falling back to "UTC".
func detectTimezone() string {
	name := time.Now().Location().String()
	if name == "" || name == "Local" {
		return "UTC"
	}
	return name
}

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	var errs []string

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.System.LogLevel] {
		errs = append(errs, fmt.Sprintf("system.log_level must be one of: debug, info, warn, error (got %q)", c.System.LogLevel))
	}
	if c.System.ProbeTimeout >= 10 {
		// must stay below the shortest cadence (10sec)
		errs = append(errs, fmt.Sprintf("system.probe_timeout (%d) must be < 10 seconds", c.System.ProbeTimeout))
	}
	if _, err := time.LoadLocation(c.System.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("system.timezone %q is not a valid IANA zone", c.System.Timezone))
	}

	switch c.Storage.Driver {
	case "file", "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, "storage.path is required for driver "+c.Storage.Driver)
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, "storage.database_url is required for driver postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver must be file, sqlite, or postgres (got %q)", c.Storage.Driver))
	}

	seen := make(map[string]bool)
	for i, n := range c.Notifiers {
		prefix := fmt.Sprintf("notifiers[%d]", i)
		if seen[n.ID] {
			errs = append(errs, prefix+".id is duplicate: "+n.ID)
		}
		seen[n.ID] = true

		switch n.Type {
		case "webhook":
			if u, err := url.Parse(n.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				errs = append(errs, prefix+".url must be a valid http(s) URL")
			}
		case "telegram":
			if n.BotToken == "" || n.ChatID == "" {
				errs = append(errs, prefix+" telegram requires bot_token and chat_id")
			}
		default:
			errs = append(errs, fmt.Sprintf("%s.type must be webhook or telegram (got %q)", prefix, n.Type))
		}
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
