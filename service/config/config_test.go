package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOG_LEVEL", "SOLANA_RPC_URL", "PORTAL_URL", "PAYMASTER_URL",
		"NATS_URL", "KEYSTORE_PATH", "BALANCE_POLL_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultSolanaRPCURL, cfg.SolanaRPCURL)
	assert.Equal(t, DefaultPortalURL, cfg.PortalURL)
	assert.Equal(t, DefaultPaymasterURL, cfg.PaymasterURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.BalancePollInterval)
	assert.Empty(t, cfg.NATSURL, "NATS is optional")
	assert.NotEmpty(t, cfg.KeystorePath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	t.Setenv("PORTAL_URL", "https://portal.example.com")
	t.Setenv("PAYMASTER_URL", "https://paymaster.example.com")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("KEYSTORE_PATH", "/tmp/keystore.db")
	t.Setenv("BALANCE_POLL_INTERVAL", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.SolanaRPCURL)
	assert.Equal(t, "https://portal.example.com", cfg.PortalURL)
	assert.Equal(t, "https://paymaster.example.com", cfg.PaymasterURL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "/tmp/keystore.db", cfg.KeystorePath)
	assert.Equal(t, 45*time.Second, cfg.BalancePollInterval)
}

func TestLoad_InvalidPollInterval(t *testing.T) {
	clearEnv(t)
	t.Setenv("BALANCE_POLL_INTERVAL", "not-a-duration")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_PollIntervalTooShort(t *testing.T) {
	clearEnv(t)
	t.Setenv("BALANCE_POLL_INTERVAL", "100ms")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1 second")
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		SolanaRPCURL:        DefaultSolanaRPCURL,
		PortalURL:           DefaultPortalURL,
		PaymasterURL:        DefaultPaymasterURL,
		KeystorePath:        "/tmp/keystore.db",
		BalancePollInterval: 30 * time.Second,
	}
	assert.NoError(t, cfg.Validate())

	cfg.PortalURL = ""
	cfg.BalancePollInterval = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PortalURL is required")
	assert.Contains(t, err.Error(), "at least 1 second")
}
