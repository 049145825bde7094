// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fieldguard/fieldguard/internal/logging"
	"github.com/fieldguard/fieldguard/internal/session"
	"github.com/fieldguard/fieldguard/internal/xdg"
)

// Default values for configuration keys.
const (
	defaultLogFormat       = "json"
	defaultLogLevel        = "info"
	defaultMetricsAddr     = "127.0.0.1:9100"
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Environment variables consulted when a key is unset.
const (
	envDatabaseURL = "DATABASE_URL"
	envJWTSecret   = "FIELDGUARD_JWT_SECRET"
)

// Config is the CLI configuration.
type Config struct {
	DatabaseURL     string         `koanf:"database_url"`
	CacheDir        string         `koanf:"cache_dir"`
	LogFormat       string         `koanf:"log_format"`
	LogLevel        string         `koanf:"log_level"`
	MetricsAddr     string         `koanf:"metrics_addr"`
	JWTSecret       string         `koanf:"jwt_secret"`
	AccessTokenTTL  time.Duration  `koanf:"access_token_ttl"`
	RefreshTokenTTL time.Duration  `koanf:"refresh_token_ttl"`
	Session         session.Config `koanf:"session"`
}

func defaultConfig() Config {
	return Config{
		LogFormat:       defaultLogFormat,
		LogLevel:        defaultLogLevel,
		MetricsAddr:     defaultMetricsAddr,
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
		Session:         session.DefaultConfig(),
	}
}

// Validate checks values that every command relies on.
func (c *Config) Validate() error {
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").With("key", "log_format").
			Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log_level").Wrap(err)
	}
	if err := c.Session.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "session").Wrap(err)
	}
	return nil
}

// requireBackend checks the keys needed to reach the database and sign tokens.
func (c *Config) requireBackend() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "database_url").
			Errorf("database_url is required (flag, config file or %s)", envDatabaseURL)
	}
	if len(c.JWTSecret) < 32 {
		return oops.Code("CONFIG_INVALID").With("key", "jwt_secret").
			Errorf("jwt_secret must be at least 32 bytes (config file or %s)", envJWTSecret)
	}
	return nil
}

// addGlobalFlags registers the flags shared by every subcommand.
func addGlobalFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", "", "config file path (default: XDG_CONFIG_HOME/fieldguard/config.yaml)")
	f.String("database-url", "", "PostgreSQL URL (default: $"+envDatabaseURL+")")
	f.String("cache-dir", "", "device cache directory (default: XDG_DATA_HOME/fieldguard/cache)")
	f.String("log-format", defaultLogFormat, "log format (json or text)")
	f.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
}

// flagKey maps a flag name to its configuration key.
func flagKey(f *pflag.Flag) string {
	return strings.ReplaceAll(f.Name, "-", "_")
}

// loadConfig layers defaults, the config file and changed flags, then applies
// environment fallbacks.
func loadConfig(flags *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	path, explicit := configPath(flags)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", path).Wrap(err)
			}
		}
	}

	flagProvider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		if f.Name == "config" {
			return "", nil
		}
		return flagKey(f), posflag.FlagVal(flags, f)
	})
	if err := k.Load(flagProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = getenv(envDatabaseURL)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = getenv(envJWTSecret)
	}
	if cfg.CacheDir == "" {
		dir, err := xdg.CacheDir()
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("key", "cache_dir").Wrap(err)
		}
		cfg.CacheDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPath returns the --config value, or the XDG default when it exists.
func configPath(flags *pflag.FlagSet) (path string, explicit bool) {
	if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
		return f.Value.String(), true
	}
	path, err := xdg.ConfigFile()
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, false
}
