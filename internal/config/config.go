// Package config loads server configuration.
//
// Sources, highest priority first:
//  1. explicit --config path
//  2. CONFIG_PATH
//  3. ./local.yaml
//  4. environment only
//
// Environment variables always overlay whatever the YAML file set.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env   string      `yaml:"env" env:"ENV" env-default:"local"`
	HTTP  HTTPConfig  `yaml:"http"`
	DB    DBConfig    `yaml:"db"`
	Log   LogConfig   `yaml:"log"`
	Auth  AuthConfig  `yaml:"auth"`
	Redis RedisConfig `yaml:"redis"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port            string        `yaml:"port" env:"PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

type DBConfig struct {
	Path string `yaml:"path" env:"DB_PATH" env-default:"data/game-saviour.db"`
}

// LogConfig selects the slog handler. Format is "text" or "json".
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// AuthConfig holds session and identity-provider settings.
// Google sign-in is enabled only when both client ID and secret are set.
type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL           time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"24h"`
	SecureCookie       bool          `yaml:"secure_cookie" env:"SECURE_COOKIE" env-default:"false"`
	GoogleClientID     string        `yaml:"google_client_id" env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `yaml:"google_client_secret" env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string        `yaml:"google_callback_url" env:"GOOGLE_CALLBACK_URL"`
}

func (a AuthConfig) GoogleEnabled() bool {
	return a.GoogleClientID != "" && a.GoogleClientSecret != ""
}

// RedisConfig enables the listing cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"5m"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// MustLoad panics when the configuration cannot be loaded.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	read := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %q: %w", p, err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}
		return finish(&cfg)
	}

	if path != "" {
		return read(path)
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return read(envPath)
	}
	if _, err := os.Stat("local.yaml"); err == nil {
		return read("local.yaml")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	if cfg.Auth.GoogleCallbackURL == "" {
		cfg.Auth.GoogleCallbackURL = fmt.Sprintf("http://localhost:%s/auth/google/callback", cfg.HTTP.Port)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret (JWT_SECRET) must be at least 16 characters"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.DB.Path == "" {
		errs = append(errs, errors.New("db.path must not be empty"))
	}

	return errors.Join(errs...)
}

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
