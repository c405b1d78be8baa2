// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads the process configuration: structured defaults,
// an optional YAML file, and command-line flags, merged in that order.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Notify   NotifyConfig   `koanf:"notify"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr string    `koanf:"addr"`
	TLS  TLSConfig `koanf:"tls"`
}

// TLSConfig enables serving over TLS with certificates from Dir. An
// empty Dir falls back to the XDG certs directory.
type TLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL              string        `koanf:"url"`
	ConnectTimeout   time.Duration `koanf:"connect_timeout"`
	MinServerVersion string        `koanf:"min_server_version"`
}

// AuthConfig carries the auth state-machine windows. Mirrors
// auth.Config with koanf tags.
type AuthConfig struct {
	ActivationTTL    time.Duration `koanf:"activation_ttl"`
	RetryWindow      time.Duration `koanf:"retry_window"`
	MaxAttempts      int           `koanf:"max_attempts"`
	BlockDuration    time.Duration `koanf:"block_duration"`
	SessionTTL       time.Duration `koanf:"session_ttl"`
	RefreshThreshold time.Duration `koanf:"refresh_threshold"`
}

// AuthConfig converts to the domain configuration value.
func (c AuthConfig) AuthConfig() auth.Config {
	return auth.Config{
		ActivationTTL:    c.ActivationTTL,
		RetryWindow:      c.RetryWindow,
		MaxAttempts:      c.MaxAttempts,
		BlockDuration:    c.BlockDuration,
		SessionTTL:       c.SessionTTL,
		RefreshThreshold: c.RefreshThreshold,
	}
}

// NotifyConfig selects the activation-token delivery channel.
type NotifyConfig struct {
	// Mode is "log" or "smtp".
	Mode string     `koanf:"mode"`
	SMTP SMTPConfig `koanf:"smtp"`

	// Allow lists glob patterns of permitted recipients. Empty allows
	// all.
	Allow []string `koanf:"allow"`
}

// SMTPConfig configures outbound mail delivery.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	From     string `koanf:"from"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Default returns the stock configuration. The database URL has no
// default and must come from file or flags.
func Default() Config {
	ac := auth.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr: ":8443",
		},
		Database: DatabaseConfig{
			ConnectTimeout:   30 * time.Second,
			MinServerVersion: "14.0",
		},
		Auth: AuthConfig{
			ActivationTTL:    ac.ActivationTTL,
			RetryWindow:      ac.RetryWindow,
			MaxAttempts:      ac.MaxAttempts,
			BlockDuration:    ac.BlockDuration,
			SessionTTL:       ac.SessionTTL,
			RefreshThreshold: ac.RefreshThreshold,
		},
		Notify: NotifyConfig{
			Mode: "log",
			SMTP: SMTPConfig{Port: 587},
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// DefaultPath returns the conventional config file location under the
// XDG config directory.
func DefaultPath() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load merges defaults, the YAML file at path (skipped when path is
// empty or the default file does not exist), and any set flags. Flags
// use dotted koanf keys (e.g. --server.addr). The result is validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		// Passing k lets unchanged flags defer to file values.
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "flags").
				Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "unmarshal config").
			Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefaultFile behaves like Load with the conventional file path,
// tolerating its absence.
func LoadDefaultFile(flags *pflag.FlagSet) (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = ""
	}
	return Load(path, flags)
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.addr must not be empty")
	}
	if c.Metrics.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("metrics.addr must not be empty")
	}
	if c.Database.ConnectTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("database.connect_timeout must be positive, got %s", c.Database.ConnectTimeout)
	}

	if err := c.Auth.AuthConfig().Validate(); err != nil {
		return err
	}

	switch c.Log.Format {
	case "", "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").
			With("log_format", c.Log.Format).
			Errorf("log.format must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	switch c.Notify.Mode {
	case "log":
	case "smtp":
		if c.Notify.SMTP.Host == "" {
			return oops.Code("CONFIG_INVALID").Errorf("notify.smtp.host is required in smtp mode")
		}
		if c.Notify.SMTP.From == "" {
			return oops.Code("CONFIG_INVALID").Errorf("notify.smtp.from is required in smtp mode")
		}
		if c.Notify.SMTP.Port <= 0 || c.Notify.SMTP.Port > 65535 {
			return oops.Code("CONFIG_INVALID").
				Errorf("notify.smtp.port must be in 1..65535, got %d", c.Notify.SMTP.Port)
		}
	default:
		return oops.Code("CONFIG_INVALID").
			With("notify_mode", c.Notify.Mode).
			Errorf("notify.mode must be log or smtp")
	}
	for _, pattern := range c.Notify.Allow {
		if _, err := glob.Compile(pattern); err != nil {
			return oops.Code("CONFIG_INVALID").
				With("pattern", pattern).
				Wrapf(err, "invalid notify.allow pattern")
		}
	}

	return nil
}
