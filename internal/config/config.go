package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Draft store backends.
const (
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	DraftStore         string        `mapstructure:"DRAFT_STORE"`
	DraftBoltPath      string        `mapstructure:"DRAFT_BOLT_PATH"`
	AutosaveInterval   time.Duration `mapstructure:"AUTOSAVE_INTERVAL"`
	SessionIdleTimeout time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
	SubmitLatency      time.Duration `mapstructure:"SUBMIT_LATENCY"`
	JWTSigningKey      string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer          string        `mapstructure:"JWT_ISSUER"`
	TokenTTL           time.Duration `mapstructure:"TOKEN_TTL"`
	BcryptCost         int           `mapstructure:"BCRYPT_COST"`
	PasswordResetURL   string        `mapstructure:"PASSWORD_RESET_URL"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
}

// devSigningKey is only accepted outside production.
const devSigningKey = "healthfirst-development-signing-key"

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DRAFT_STORE", StoreMemory)
	v.SetDefault("DRAFT_BOLT_PATH", "drafts.db")
	v.SetDefault("AUTOSAVE_INTERVAL", "30s")
	v.SetDefault("SESSION_IDLE_TIMEOUT", "30m")
	v.SetDefault("SUBMIT_LATENCY", "0s")
	v.SetDefault("JWT_ISSUER", "healthfirst")
	v.SetDefault("TOKEN_TTL", "12h")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("PASSWORD_RESET_URL", "http://localhost:3000/reset-password")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"DRAFT_STORE", "DRAFT_BOLT_PATH", "AUTOSAVE_INTERVAL", "SESSION_IDLE_TIMEOUT",
		"SUBMIT_LATENCY", "JWT_SIGNING_KEY", "JWT_ISSUER", "TOKEN_TTL", "BCRYPT_COST",
		"PASSWORD_RESET_URL", "CORS_ORIGINS", "BODY_LIMIT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = splitList(origins)
		}
	}
	cfg.DraftStore = strings.ToLower(strings.TrimSpace(cfg.DraftStore))

	if cfg.JWTSigningKey == "" && !cfg.IsProduction() {
		cfg.JWTSigningKey = devSigningKey
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.DraftStore {
	case StoreMemory:
	case StoreBolt:
		if c.DraftBoltPath == "" {
			return fmt.Errorf("DRAFT_BOLT_PATH is required when DRAFT_STORE is %q", StoreBolt)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DRAFT_STORE is %q", StorePostgres)
		}
	default:
		return fmt.Errorf("DRAFT_STORE must be %q, %q or %q, got %q", StoreMemory, StoreBolt, StorePostgres, c.DraftStore)
	}

	if c.IsProduction() && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes in production")
	}
	if c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required")
	}

	durations := []struct {
		key string
		d   time.Duration
	}{
		{"AUTOSAVE_INTERVAL", c.AutosaveInterval},
		{"SESSION_IDLE_TIMEOUT", c.SessionIdleTimeout},
		{"TOKEN_TTL", c.TokenTTL},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.d)
		}
	}
	if c.SubmitLatency < 0 {
		return fmt.Errorf("SUBMIT_LATENCY must not be negative, got %s", c.SubmitLatency)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// UsesPostgres reports whether the server needs a database pool.
func (c *Config) UsesPostgres() bool {
	return c.DraftStore == StorePostgres
}
