package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for flywheeld.
type Config struct {
	General     GeneralConfig     `yaml:"general"`
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Solana      SolanaConfig      `yaml:"solana"`
	Auth        AuthConfig        `yaml:"auth"`
	Activations ActivationsConfig `yaml:"activations"`
}

type GeneralConfig struct {
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type RedisConfig struct {
	// URL is empty to run on the in-memory stores, which is only
	// suitable for a single-instance deployment.
	URL string `yaml:"url"`
}

type SolanaConfig struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
	// TreasuryAddress receives swept deposits and is probed by the
	// health check. Per-activation deposit addresses are minted at
	// runtime, never configured.
	TreasuryAddress string `yaml:"treasury_address"`
	// OpsWalletKey is the base58 private key used to sign launch
	// transactions. Usually injected via ${FLYWHEEL_OPS_WALLET_KEY}.
	OpsWalletKey string `yaml:"ops_wallet_key"`
}

type AuthConfig struct {
	ChallengeTTLSeconds    int `yaml:"challenge_ttl_seconds"`
	AccessTTLSeconds       int `yaml:"access_ttl_seconds"`
	RateLimit              int `yaml:"rate_limit"`
	RateLimitWindowSeconds int `yaml:"rate_limit_window_seconds"`
}

func (c AuthConfig) ChallengeTTL() time.Duration {
	return time.Duration(c.ChallengeTTLSeconds) * time.Second
}

func (c AuthConfig) AccessTTL() time.Duration { return time.Duration(c.AccessTTLSeconds) * time.Second }

func (c AuthConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

type ActivationsConfig struct {
	TTLMinutes            int    `yaml:"ttl_minutes"`
	SweepIntervalSeconds  int    `yaml:"sweep_interval_seconds"`
	RetryBackoffSeconds   int    `yaml:"retry_backoff_seconds"`
	ExecutionLeaseSeconds int    `yaml:"execution_lease_seconds"`
	MaxAttempts           int    `yaml:"max_attempts"`
	LaunchCostSOL         string `yaml:"launch_cost_sol"`
}

func (c ActivationsConfig) TTL() time.Duration { return time.Duration(c.TTLMinutes) * time.Minute }

func (c ActivationsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c ActivationsConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

func (c ActivationsConfig) ExecutionLease() time.Duration {
	return time.Duration(c.ExecutionLeaseSeconds) * time.Second
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Solana.RPCEndpoint == "" {
		cfg.Solana.RPCEndpoint = "https://api.mainnet-beta.solana.com"
	}
	if cfg.Auth.ChallengeTTLSeconds == 0 {
		cfg.Auth.ChallengeTTLSeconds = 300
	}
	if cfg.Auth.AccessTTLSeconds == 0 {
		cfg.Auth.AccessTTLSeconds = 900
	}
	if cfg.Auth.RateLimit == 0 {
		cfg.Auth.RateLimit = 5
	}
	if cfg.Auth.RateLimitWindowSeconds == 0 {
		cfg.Auth.RateLimitWindowSeconds = 60
	}
	if cfg.Activations.TTLMinutes == 0 {
		cfg.Activations.TTLMinutes = 30
	}
	if cfg.Activations.SweepIntervalSeconds == 0 {
		cfg.Activations.SweepIntervalSeconds = 5
	}
	if cfg.Activations.RetryBackoffSeconds == 0 {
		cfg.Activations.RetryBackoffSeconds = 30
	}
	if cfg.Activations.ExecutionLeaseSeconds == 0 {
		cfg.Activations.ExecutionLeaseSeconds = 300
	}
	if cfg.Activations.MaxAttempts == 0 {
		cfg.Activations.MaxAttempts = 3
	}
	if cfg.Activations.LaunchCostSOL == "" {
		cfg.Activations.LaunchCostSOL = "0.5"
	}
}
