// Package config loads the server configuration once at process start.
// The encryption key lives here as explicit state passed down to the
// cipher; nothing re-reads the environment after boot.
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	ListenAddr         string `yaml:"listen_addr"`
	TLSCertFile        string `yaml:"tls_cert"`
	TLSKeyFile         string `yaml:"tls_key"`
	DBUrl              string `yaml:"db_url"`
	MigrationsDir      string `yaml:"migrations_dir"`
	LogLevel           string `yaml:"log_level"`
	TokenEncryptionKey string `yaml:"token_encryption_key"`
	ServiceToken       string `yaml:"service_token"`
	AdPlatformBaseURL  string `yaml:"ad_platform_base_url"`
}

// Load reads the YAML config file (if present), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr:        ":8300",
		MigrationsDir:     "migrations",
		LogLevel:          "info",
		AdPlatformBaseURL: "https://ads.example.com/api",
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"ADOPS_LISTEN_ADDR":    &cfg.ListenAddr,
		"DATABASE_URL":         &cfg.DBUrl,
		"ADOPS_LOG_LEVEL":      &cfg.LogLevel,
		"TOKEN_ENCRYPTION_KEY": &cfg.TokenEncryptionKey,
		"ADOPS_SERVICE_TOKEN":  &cfg.ServiceToken,
		"AD_PLATFORM_BASE_URL": &cfg.AdPlatformBaseURL,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

func (c *Config) validate() error {
	if c.TokenEncryptionKey == "" {
		return fmt.Errorf("token_encryption_key is required (or TOKEN_ENCRYPTION_KEY env var)")
	}
	keyBytes, err := hex.DecodeString(c.TokenEncryptionKey)
	if err != nil {
		return fmt.Errorf("token_encryption_key must be valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return fmt.Errorf("token_encryption_key must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
	}

	if c.ServiceToken == "" {
		return fmt.Errorf("service_token is required (or ADOPS_SERVICE_TOKEN env var)")
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	return nil
}
