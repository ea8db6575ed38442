package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults for the service endpoints and polling cadence. The CLI surfaces
// these through its flags; library consumers get them via Load.
const (
	DefaultSolanaRPCURL = "https://api.devnet.solana.com"
	DefaultPortalURL    = "http://localhost:9000"
	DefaultPaymasterURL = "http://localhost:9001"

	DefaultBalancePollInterval = 30 * time.Second
)

// Config holds all client configuration loaded from environment variables.
// All fields are validated before use to ensure fail-fast behavior.
type Config struct {
	// Logging
	LogLevel string

	// Solana configuration
	SolanaRPCURL string

	// Wallet service endpoints
	PortalURL    string
	PaymasterURL string

	// NATS configuration (optional; empty disables event publishing)
	NATSURL string

	// Local credential keystore
	KeystorePath string

	// Balance polling configuration
	BalancePollInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults for
// anything unset, and validates the result. Returns an error if any value is
// invalid.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		SolanaRPCURL: getEnvOrDefault("SOLANA_RPC_URL", DefaultSolanaRPCURL),
		PortalURL:    getEnvOrDefault("PORTAL_URL", DefaultPortalURL),
		PaymasterURL: getEnvOrDefault("PAYMASTER_URL", DefaultPaymasterURL),
		NATSURL:      os.Getenv("NATS_URL"),
		KeystorePath: getEnvOrDefault("KEYSTORE_PATH", DefaultKeystorePath()),
	}

	pollInterval, err := parseDuration("BALANCE_POLL_INTERVAL", DefaultBalancePollInterval.String())
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}
	cfg.BalancePollInterval = pollInterval

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid, aggregating every problem
// into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.PortalURL == "" {
		errs = append(errs, fmt.Errorf("PortalURL is required"))
	}

	if c.PaymasterURL == "" {
		errs = append(errs, fmt.Errorf("PaymasterURL is required"))
	}

	if c.KeystorePath == "" {
		errs = append(errs, fmt.Errorf("KeystorePath is required"))
	}

	if c.BalancePollInterval < time.Second {
		errs = append(errs, fmt.Errorf("BalancePollInterval must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// DefaultKeystorePath places the keystore under the user's config directory.
func DefaultKeystorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pkwallet-keystore.db"
	}
	return filepath.Join(dir, "pkwallet", "keystore.db")
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}
