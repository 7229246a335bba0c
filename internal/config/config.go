package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the server configuration
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	DevMode     bool   `envconfig:"DEV_MODE" default:"false"`

	AdminSessionTTL      time.Duration `envconfig:"ADMIN_SESSION_TTL" default:"24h"`
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1h"`

	TrialDays         int           `envconfig:"TRIAL_DAYS" default:"14"`
	LicenseSigningKey string        `envconfig:"LICENSE_SIGNING_KEY"`
	LicenseTokenTTL   time.Duration `envconfig:"LICENSE_TOKEN_TTL" default:"168h"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	RateLimitRPS   float64  `envconfig:"RATE_LIMIT_RPS" default:"0.5"`
	RateLimitBurst int      `envconfig:"RATE_LIMIT_BURST" default:"10"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.TrialDays <= 0 {
		return fmt.Errorf("TRIAL_DAYS must be positive, got %d", c.TrialDays)
	}
	if c.AdminSessionTTL <= 0 {
		return fmt.Errorf("ADMIN_SESSION_TTL must be positive")
	}
	if c.LicenseTokenTTL <= 0 {
		return fmt.Errorf("LICENSE_TOKEN_TTL must be positive")
	}
	if c.SessionSweepInterval < 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must not be negative")
	}
	if c.LicenseSigningKey == "" && !c.DevMode {
		return fmt.Errorf("LICENSE_SIGNING_KEY environment variable is required")
	}
	if c.LicenseSigningKey != "" {
		if _, err := c.SigningKey(); err != nil {
			return err
		}
	}
	return nil
}

// SigningKey decodes LICENSE_SIGNING_KEY (a base64 Ed25519 seed). It returns nil when unset.
func (c *Config) SigningKey() (ed25519.PrivateKey, error) {
	if c.LicenseSigningKey == "" {
		return nil, nil
	}
	seed, err := base64.StdEncoding.DecodeString(c.LicenseSigningKey)
	if err != nil {
		return nil, fmt.Errorf("LICENSE_SIGNING_KEY is not valid base64: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("LICENSE_SIGNING_KEY must decode to %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// IsProduction reports whether the server runs with production settings
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ClientConfig holds the settings of the license client CLI
type ClientConfig struct {
	ServerURL string        `envconfig:"LICENSE_SERVER_URL" default:"http://localhost:8080"`
	PublicKey string        `envconfig:"LICENSE_PUBLIC_KEY"`
	StateFile string        `envconfig:"LICENSE_STATE_FILE"`
	Timeout   time.Duration `envconfig:"LICENSE_CLIENT_TIMEOUT" default:"15s"`
}

// LoadClient reads the client configuration from environment variables
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load client config from env: %w", err)
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:8080"
	}
	return &cfg, nil
}

// VerifyKey decodes LICENSE_PUBLIC_KEY. It returns nil when unset.
func (c *ClientConfig) VerifyKey() (ed25519.PublicKey, error) {
	if c.PublicKey == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(c.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("LICENSE_PUBLIC_KEY is not valid base64: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("LICENSE_PUBLIC_KEY must decode to %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
