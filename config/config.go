// Package config loads service configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Offline   OfflineConfig   `mapstructure:"offline"`
	Search    SearchConfig    `mapstructure:"search"`
	Retention RetentionConfig `mapstructure:"retention"`
}

type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// GatewayConfig selects and tunes the retrieval backend.
type GatewayConfig struct {
	Mode    string        `mapstructure:"mode"` // remote or offline
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (g GatewayConfig) Validate() error {
	switch g.Mode {
	case "remote":
		if strings.TrimSpace(g.BaseURL) == "" {
			return fmt.Errorf("gateway.base_url required in remote mode")
		}
	case "offline":
	default:
		return fmt.Errorf("gateway.mode must be remote or offline, got %q", g.Mode)
	}
	return nil
}

type SessionConfig struct {
	Store string        `mapstructure:"store"` // inmemory or redis
	TTL   time.Duration `mapstructure:"ttl"`
}

func (s SessionConfig) Validate() error {
	if s.Store != "inmemory" && s.Store != "redis" {
		return fmt.Errorf("session.store must be inmemory or redis, got %q", s.Store)
	}
	return nil
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Enabled reports whether any postgres settings were provided at all; the
// standalone archive is optional.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN assembles the connection string from the url field or the parts.
func (p PostgresConfig) DSN() (string, error) {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("storage.postgres.host and dbname required when url is not provided")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

type OfflineConfig struct {
	Engine      string `mapstructure:"engine"` // naive or bleve
	CatalogPath string `mapstructure:"catalog_path"`
	Limit       int    `mapstructure:"limit"`
}

type SearchConfig struct {
	DefaultFPS float64 `mapstructure:"default_fps"`
}

type RetentionConfig struct {
	// SweepCron schedules the session janitor; empty disables it.
	SweepCron string        `mapstructure:"sweep_cron"`
	MaxAge    time.Duration `mapstructure:"max_age"`
}

// Load reads config.yaml (from path, or the usual lookup dirs) with
// KEYSEEK_* environment overrides. A missing file is fine: defaults plus
// environment cover the offline out-of-the-box setup.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("gateway.mode", "offline")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("session.store", "inmemory")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.timeout", 5*time.Second)
	v.SetDefault("offline.engine", "naive")
	v.SetDefault("search.default_fps", 30)
	v.SetDefault("retention.max_age", 7*24*time.Hour)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("KEYSEEK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Gateway.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
