// Package config resolves service configuration from a YAML file with
// environment variable overrides. Environment always wins over file
// values so deployments can inject secrets without editing the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by Load.
const (
	EnvConfigPath           = "CONFIG_PATH"
	EnvPlatformDBConnection = "PLATFORM_DB_CONNECTION"
	EnvPrivnodeDBConnection = "PRIVNODE_DB_CONNECTION"
	EnvRedemptionJWTSecret  = "REDEMPTION_CODE_JWT_SECRET"
	EnvStripeSecretKey      = "STRIPE_SECRET_KEY"
	EnvStripeWebhookSecret  = "STRIPE_WEBHOOK_SECRET"
	EnvPort                 = "PORT"
)

// Config validation errors.
var (
	ErrMissingPlatformDSN      = errors.New("missing platform database dsn (set `platform-database-dsn` or PLATFORM_DB_CONNECTION)")
	ErrMissingPrivnodeDSN      = errors.New("missing privnode database dsn (set `privnode-database-dsn` or PRIVNODE_DB_CONNECTION)")
	ErrMissingRedemptionSecret = errors.New("missing redemption code secret (set `redemption.jwt-secret` or REDEMPTION_CODE_JWT_SECRET)")
)

// defaultSweepInterval applies when the config omits or invalidates the
// sweep interval.
const defaultSweepInterval = 10 * time.Minute

// StripeConfig holds Stripe API and webhook credentials.
type StripeConfig struct {
	SecretKey     string `yaml:"secret-key"`
	WebhookSecret string `yaml:"webhook-secret"`
}

// RedemptionConfig holds redemption code signing settings.
type RedemptionConfig struct {
	JWTSecret string `yaml:"jwt-secret"`
}

// SweepConfig holds expiry sweep settings.
type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Config is the resolved service configuration.
type Config struct {
	PlatformDSN string           `yaml:"platform-database-dsn"`
	PrivnodeDSN string           `yaml:"privnode-database-dsn"`
	Redemption  RedemptionConfig `yaml:"redemption"`
	Stripe      StripeConfig     `yaml:"stripe"`
	Sweep       SweepConfig      `yaml:"sweep"`
	Server      ServerConfig     `yaml:"server"`
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML config file, applies environment overrides and
// defaults, and validates required values. A missing file is not an
// error when the environment supplies everything required.
func Load(configPath string) (Config, error) {
	var cfg Config

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	if dsn := strings.TrimSpace(os.Getenv(EnvPlatformDBConnection)); dsn != "" {
		cfg.PlatformDSN = dsn
	}
	if dsn := strings.TrimSpace(os.Getenv(EnvPrivnodeDBConnection)); dsn != "" {
		cfg.PrivnodeDSN = dsn
	}
	if secret := strings.TrimSpace(os.Getenv(EnvRedemptionJWTSecret)); secret != "" {
		cfg.Redemption.JWTSecret = secret
	}
	if key := strings.TrimSpace(os.Getenv(EnvStripeSecretKey)); key != "" {
		cfg.Stripe.SecretKey = key
	}
	if secret := strings.TrimSpace(os.Getenv(EnvStripeWebhookSecret)); secret != "" {
		cfg.Stripe.WebhookSecret = secret
	}
	if portRaw := strings.TrimSpace(os.Getenv(EnvPort)); portRaw != "" {
		if _, errScan := fmt.Sscanf(portRaw, "%d", &cfg.Server.Port); errScan != nil {
			return Config{}, fmt.Errorf("parse PORT: %w", errScan)
		}
	}

	if cfg.Sweep.Interval <= 0 {
		cfg.Sweep.Interval = defaultSweepInterval
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}

	if strings.TrimSpace(cfg.PlatformDSN) == "" {
		return Config{}, ErrMissingPlatformDSN
	}
	if strings.TrimSpace(cfg.PrivnodeDSN) == "" {
		return Config{}, ErrMissingPrivnodeDSN
	}
	if strings.TrimSpace(cfg.Redemption.JWTSecret) == "" {
		return Config{}, ErrMissingRedemptionSecret
	}
	return cfg, nil
}
