// Package config loads ratemykey settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rcliao/ratemykey/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. RATEMYKEY_SERVER_PORT.
const EnvPrefix = "RATEMYKEY"

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Scoring  ScoringConfig
	Cache    CacheConfig
	Logging  logger.Config
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Path string
}

type ScoringConfig struct {
	SZLimit      float64
	NZLimit      float64
	Window       time.Duration
	LedgerCap    int
	PruneTimeout time.Duration
	MaxSkew      time.Duration
}

type CacheConfig struct {
	Grace         time.Duration
	Margin        time.Duration
	ShadowEnabled bool
	ShadowSize    int
}

// DefaultDBPath returns ~/.ratemykey/ratemykey.db, or a relative path when
// the home directory is unknown.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ratemykey", "ratemykey.db")
	}
	return filepath.Join(home, ".ratemykey", "ratemykey.db")
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Path: DefaultDBPath()},
		Scoring: ScoringConfig{
			SZLimit:      3,
			NZLimit:      3,
			Window:       24 * time.Hour,
			LedgerCap:    1000,
			PruneTimeout: 30 * time.Second,
			MaxSkew:      time.Hour,
		},
		Cache: CacheConfig{
			Grace:         5 * time.Second,
			Margin:        2 * time.Second,
			ShadowEnabled: true,
			ShadowSize:    128,
		},
		Logging: logger.DefaultConfig(),
	}
}

// Load reads configuration. path may be empty; a missing file is not an
// error. v may carry flag bindings and is created when nil.
func Load(path string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := unmarshal(v)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("scoring.sz_limit", d.Scoring.SZLimit)
	v.SetDefault("scoring.nz_limit", d.Scoring.NZLimit)
	v.SetDefault("scoring.window", d.Scoring.Window)
	v.SetDefault("scoring.ledger_cap", d.Scoring.LedgerCap)
	v.SetDefault("scoring.prune_timeout", d.Scoring.PruneTimeout)
	v.SetDefault("scoring.max_skew", d.Scoring.MaxSkew)

	v.SetDefault("cache.grace", d.Cache.Grace)
	v.SetDefault("cache.margin", d.Cache.Margin)
	v.SetDefault("cache.shadow_enabled", d.Cache.ShadowEnabled)
	v.SetDefault("cache.shadow_size", d.Cache.ShadowSize)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

func unmarshal(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")

	cfg.Database.Path = v.GetString("database.path")

	cfg.Scoring.SZLimit = v.GetFloat64("scoring.sz_limit")
	cfg.Scoring.NZLimit = v.GetFloat64("scoring.nz_limit")
	cfg.Scoring.Window = v.GetDuration("scoring.window")
	cfg.Scoring.LedgerCap = v.GetInt("scoring.ledger_cap")
	cfg.Scoring.PruneTimeout = v.GetDuration("scoring.prune_timeout")
	cfg.Scoring.MaxSkew = v.GetDuration("scoring.max_skew")

	cfg.Cache.Grace = v.GetDuration("cache.grace")
	cfg.Cache.Margin = v.GetDuration("cache.margin")
	cfg.Cache.ShadowEnabled = v.GetBool("cache.shadow_enabled")
	cfg.Cache.ShadowSize = v.GetInt("cache.shadow_size")

	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")
	cfg.Logging.File = v.GetString("logging.file")
	cfg.Logging.MaxSizeMB = v.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = v.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = v.GetInt("logging.max_age_days")
	cfg.Logging.Compress = v.GetBool("logging.compress")

	return cfg
}

// applyEnvOverrides honors the short variables older deployments set.
func applyEnvOverrides(cfg *Config) error {
	if s := os.Getenv("SZLIMIT"); s != "" {
		var f float64
		if _, err := fmt.Sscan(s, &f); err != nil {
			return fmt.Errorf("parse SZLIMIT %q: %w", s, err)
		}
		cfg.Scoring.SZLimit = f
	}
	if s := os.Getenv("NZLIMIT"); s != "" {
		var f float64
		if _, err := fmt.Sscan(s, &f); err != nil {
			return fmt.Errorf("parse NZLIMIT %q: %w", s, err)
		}
		cfg.Scoring.NZLimit = f
	}
	if s := os.Getenv("PORT"); s != "" {
		var p int
		if _, err := fmt.Sscan(s, &p); err != nil {
			return fmt.Errorf("parse PORT %q: %w", s, err)
		}
		cfg.Server.Port = p
	}
	if s := os.Getenv("HOST"); s != "" {
		cfg.Server.Host = s
	}
	return nil
}
