package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "flywheel-config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoadConfig(t *testing.T) {
	yaml := `
general:
  environment: "staging"
  log_level: "debug"
  log_format: "text"

server:
  addr: ":9000"

redis:
  url: "redis://localhost:6379/1"

solana:
  rpc_endpoint: "https://api.devnet.solana.com"
  treasury_address: "Treasury111111111111111111111111111111111111"

auth:
  challenge_ttl_seconds: 120
  rate_limit: 10

activations:
  ttl_minutes: 15
  max_attempts: 5
  launch_cost_sol: "0.75"
`
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.General.Environment)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.URL)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.Solana.RPCEndpoint)
	assert.Equal(t, "Treasury111111111111111111111111111111111111", cfg.Solana.TreasuryAddress)
	assert.Equal(t, 2*time.Minute, cfg.Auth.ChallengeTTL())
	assert.Equal(t, 10, cfg.Auth.RateLimit)
	assert.Equal(t, 15*time.Minute, cfg.Activations.TTL())
	assert.Equal(t, 5, cfg.Activations.MaxAttempts)
	assert.Equal(t, "0.75", cfg.Activations.LaunchCostSOL)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "solana:\n  treasury_address: \"Trs111\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.General.Environment)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, "json", cfg.General.LogFormat)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.Solana.RPCEndpoint)
	assert.Equal(t, 5*time.Minute, cfg.Auth.ChallengeTTL())
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL())
	assert.Equal(t, 5, cfg.Auth.RateLimit)
	assert.Equal(t, time.Minute, cfg.Auth.RateLimitWindow())
	assert.Equal(t, 30*time.Minute, cfg.Activations.TTL())
	assert.Equal(t, 5*time.Second, cfg.Activations.SweepInterval())
	assert.Equal(t, 30*time.Second, cfg.Activations.RetryBackoff())
	assert.Equal(t, 5*time.Minute, cfg.Activations.ExecutionLease())
	assert.Equal(t, 3, cfg.Activations.MaxAttempts)
	assert.Equal(t, "0.5", cfg.Activations.LaunchCostSOL)
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("FLYWHEEL_TEST_RPC", "https://rpc.example.com")

	cfg, err := Load(writeConfig(t, "solana:\n  rpc_endpoint: \"${FLYWHEEL_TEST_RPC}\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example.com", cfg.Solana.RPCEndpoint)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "general: [not a map"))
	assert.Error(t, err)
}
