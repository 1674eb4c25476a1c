// Package config loads server configuration from environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains server configuration parameters.
type Config struct {
	Env             string    `env:"APP_ENV" envDefault:"development"`
	Port            int       `env:"PORT" envDefault:"3333"`
	LogLevel        string    `env:"LOG_LEVEL" envDefault:"info"`
	DBPath          string    `env:"DB_PATH" envDefault:"data/opensourcehub.db"`
	FrontendBaseURL string    `env:"FRONTEND_BASE_URL" envDefault:"http://localhost:5173"`
	JWT             JWT       `envPrefix:"JWT_"`
	GitHub          GitHub    `envPrefix:"GITHUB_"`
	RateLimit       RateLimit `envPrefix:"RATE_LIMIT_"`
}

// JWT contains token signing parameters.
type JWT struct {
	Secret     string        `env:"SECRET,required"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"10m"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
}

// GitHub contains OAuth app credentials and REST API parameters.
type GitHub struct {
	ClientID     string `env:"CLIENT_ID,required"`
	ClientSecret string `env:"CLIENT_SECRET,required"`
	BaseURL      string `env:"BASE_URL" envDefault:"https://api.github.com"`
	OAuthBaseURL string `env:"OAUTH_BASE_URL" envDefault:"https://github.com"`
	// EncryptKey is the base64 AES-256 key for stored access tokens.
	EncryptKey string        `env:"ACCESS_TOKEN_ENCRYPT_KEY,required"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"10s"`
	MaxPages   int           `env:"MAX_PAGES" envDefault:"50"`
}

// RateLimit contains per-IP request budgets.
type RateLimit struct {
	Global int           `env:"GLOBAL" envDefault:"300"`
	Login  int           `env:"LOGIN" envDefault:"15"`
	Window time.Duration `env:"WINDOW" envDefault:"15m"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that would only fail later at request time.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 16 {
		return errors.New("config: JWT_SECRET must be at least 16 characters")
	}
	key, err := base64.StdEncoding.DecodeString(c.GitHub.EncryptKey)
	if err != nil {
		return fmt.Errorf("config: GITHUB_ACCESS_TOKEN_ENCRYPT_KEY is not base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("config: GITHUB_ACCESS_TOKEN_ENCRYPT_KEY must decode to 32 bytes, got %d", len(key))
	}
	if c.GitHub.MaxPages < 1 {
		return errors.New("config: GITHUB_MAX_PAGES must be positive")
	}
	if c.RateLimit.Global < 1 || c.RateLimit.Login < 1 {
		return errors.New("config: RATE_LIMIT_GLOBAL and RATE_LIMIT_LOGIN must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("config: RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// IsProduction reports whether cookies must be Secure.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SlogLevel converts LogLevel, falling back to Info for unknown names.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
