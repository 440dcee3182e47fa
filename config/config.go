// Package config assembles runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const envPrefix = "TRAILGATE_"

// Config carries everything the server binary needs to start.
type Config struct {
	ListenAddr  string
	DatabaseDSN string

	TokenSecret string
	TokenTTL    time.Duration
	ResetTTL    time.Duration
	HashCost    int

	ResetURLBase     string
	WebhookURL       string
	WebhookTimeout   time.Duration
	WebhookAuthToken string

	// DevMode relaxes secret validation and enables the log notifier
	// fallback. Never set it in production.
	DevMode bool
}

func defaults() Config {
	return Config{
		ListenAddr:     ":8080",
		TokenTTL:       90 * 24 * time.Hour,
		ResetTTL:       10 * time.Minute,
		HashCost:       12,
		WebhookTimeout: 10 * time.Second,
	}
}

// Load reads configuration from the environment on top of defaults.
func Load() (Config, error) {
	cfg := defaults()

	readString(&cfg.ListenAddr, "LISTEN_ADDR")
	readString(&cfg.DatabaseDSN, "DATABASE_DSN")
	readString(&cfg.TokenSecret, "TOKEN_SECRET")
	readString(&cfg.ResetURLBase, "RESET_URL_BASE")
	readString(&cfg.WebhookURL, "WEBHOOK_URL")
	readString(&cfg.WebhookAuthToken, "WEBHOOK_AUTH_TOKEN")

	if err := readDuration(&cfg.TokenTTL, "TOKEN_TTL"); err != nil {
		return Config{}, err
	}
	if err := readDuration(&cfg.ResetTTL, "RESET_TTL"); err != nil {
		return Config{}, err
	}
	if err := readDuration(&cfg.WebhookTimeout, "WEBHOOK_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if err := readInt(&cfg.HashCost, "HASH_COST"); err != nil {
		return Config{}, err
	}
	if err := readBool(&cfg.DevMode, "DEV_MODE"); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("config: " + envPrefix + "DATABASE_DSN is required")
	}
	if c.TokenSecret == "" && !c.DevMode {
		return errors.New("config: " + envPrefix + "TOKEN_SECRET is required outside dev mode")
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: token TTL must be positive")
	}
	if c.ResetTTL <= 0 {
		return errors.New("config: reset TTL must be positive")
	}
	return nil
}

func readString(dst *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		*dst = v
	}
}

func readDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: parse %s%s: %w", envPrefix, key, err)
	}
	*dst = d
	return nil
}

func readInt(dst *int, key string) error {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: parse %s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

func readBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: parse %s%s: %w", envPrefix, key, err)
	}
	*dst = b
	return nil
}
