// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (store, limiter, validator) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/taibuivan/gatekeep/internal/platform/kv"
)

// # Store Backends

const (
	BackendRedis    = kv.BackendRedis
	BackendPostgres = kv.BackendPostgres
	BackendMemory   = kv.BackendMemory
)

// # Configuration Schema

// Config holds all runtime configuration for the gatekeep server.
type Config struct {

	// Server settings
	ServerPort    string   `env:"SERVER_PORT"     envDefault:"8080"`
	Environment   string   `env:"ENVIRONMENT"     envDefault:"development"`
	Debug         bool     `env:"DEBUG"           envDefault:"false"`
	PublicBaseURL string   `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	ExtraOrigins  []string `env:"EXTRA_ORIGINS"   envSeparator:","`

	// TrustedProxies lists the addresses or CIDR ranges allowed to set
	// X-Real-IP / X-Forwarded-For. Empty means the direct peer is the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Key-value storage
	StoreBackend  string `env:"STORE_BACKEND"   envDefault:"memory"`
	RedisURL      string `env:"REDIS_URL"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MigrationPath string `env:"MIGRATION_PATH"  envDefault:"./data/migrations"`
	MemoryMaxKeys int    `env:"MEMORY_MAX_KEYS" envDefault:"100000"`

	// Sessions
	SessionSecret          string        `env:"SESSION_SECRET,required"`
	SessionMaxAge          time.Duration `env:"SESSION_MAX_AGE"          envDefault:"168h"`
	SessionIdleTimeout     time.Duration `env:"SESSION_IDLE_TIMEOUT"     envDefault:"24h"`
	SessionRefreshInterval time.Duration `env:"SESSION_REFRESH_INTERVAL" envDefault:"5m"`

	// Rate limits
	SignupRateLimit   int           `env:"SIGNUP_RATE_LIMIT"   envDefault:"3"`
	SignupRateWindow  time.Duration `env:"SIGNUP_RATE_WINDOW"  envDefault:"1h"`
	LoginRateLimit    int           `env:"LOGIN_RATE_LIMIT"    envDefault:"10"`
	LoginRateWindow   time.Duration `env:"LOGIN_RATE_WINDOW"   envDefault:"15m"`
	ContactRateLimit  int           `env:"CONTACT_RATE_LIMIT"  envDefault:"5"`
	ContactRateWindow time.Duration `env:"CONTACT_RATE_WINDOW" envDefault:"1h"`

	// Audit logging
	AuditRetention  time.Duration `env:"AUDIT_RETENTION"    envDefault:"720h"`
	AuditMaxPerHour int           `env:"AUDIT_MAX_PER_HOUR" envDefault:"1000"`

	// Disposable-domain blocklist
	BlocklistURL          string        `env:"BLOCKLIST_URL"           envDefault:"https://raw.githubusercontent.com/disposable-email-domains/disposable-email-domains/main/disposable_email_blocklist.conf"`
	BlocklistTTL          time.Duration `env:"BLOCKLIST_TTL"           envDefault:"24h"`
	BlocklistFetchTimeout time.Duration `env:"BLOCKLIST_FETCH_TIMEOUT" envDefault:"5s"`

	// CAPTCHA (Cloudflare Turnstile)
	TurnstileSecret    string `env:"TURNSTILE_SECRET"`
	TurnstileVerifyURL string `env:"TURNSTILE_VERIFY_URL" envDefault:"https://challenges.cloudflare.com/turnstile/v0/siteverify"`
	TurnstileSiteKey   string `env:"TURNSTILE_SITE_KEY"`

	// Email delivery
	EmailProvider string `env:"EMAIL_PROVIDER"  envDefault:"log"`
	EmailAPIKey   string `env:"EMAIL_API_KEY"`
	EmailFrom     string `env:"EMAIL_FROM"      envDefault:"noreply@example.com"`
	EmailFromName string `env:"EMAIL_FROM_NAME" envDefault:"Gatekeep"`
	ContactInbox  string `env:"CONTACT_INBOX"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Map environment variables to struct fields. Fails if any 'required' field is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces cross-field rules the struct tags cannot express.
func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("config: REDIS_URL is required for the redis store backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres store backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("config: SESSION_SECRET must be at least 32 characters")
	}

	if c.SessionIdleTimeout <= 0 || c.SessionMaxAge <= 0 {
		return fmt.Errorf("config: session durations must be positive")
	}

	for _, proxy := range c.TrustedProxies {
		if proxy = strings.TrimSpace(proxy); proxy != "" && !validProxy(proxy) {
			return fmt.Errorf("config: TRUSTED_PROXIES entry %q is not an IP or CIDR", proxy)
		}
	}

	// CAPTCHA may only be switched off outside production
	if c.IsProduction() && c.TurnstileSecret == "" {
		return fmt.Errorf("config: TURNSTILE_SECRET is required in production")
	}

	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func validProxy(entry string) bool {
	if _, err := netip.ParsePrefix(entry); err == nil {
		return true
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}
