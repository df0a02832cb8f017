// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime knob of the API server. All values come from
// EPICRM_* environment variables; only the JWT secret has no default.
type Config struct {
	ListenAddr      string        `env:"EPICRM_LISTEN_ADDR" envDefault:":8080"`
	PGDSN           string        `env:"EPICRM_PG_DSN"`
	JWTSecret       string        `env:"EPICRM_JWT_SECRET"`
	JWTAlgorithm    string        `env:"EPICRM_JWT_ALG" envDefault:"HS256"`
	SessionTTL      time.Duration `env:"EPICRM_SESSION_TTL" envDefault:"24h"`
	TokenIssuer     string        `env:"EPICRM_TOKEN_ISSUER" envDefault:"epicrm"`
	RateLimitRPS    float64       `env:"EPICRM_RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst  int           `env:"EPICRM_RATE_LIMIT_BURST" envDefault:"100"`
	MaxBodyBytes    int64         `env:"EPICRM_MAX_BODY_BYTES" envDefault:"1048576"`
	ShutdownTimeout time.Duration `env:"EPICRM_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: EPICRM_JWT_SECRET is required")
	}
	if c.PGDSN == "" {
		return errors.New("config: EPICRM_PG_DSN is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: session TTL must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("config: rate limit values must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("config: max body bytes must be positive")
	}
	return nil
}
