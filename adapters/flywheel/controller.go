package flywheel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

// Controller is the in-process FlywheelController. It owns the per-wallet
// trading configuration the trading engine reads; the engine itself is an
// external collaborator consuming this state and the published events.
type Controller struct {
	mu      sync.Mutex
	configs map[string]core.FlywheelConfig
}

// NewController creates a controller with no configured wallets.
func NewController() *Controller {
	return &Controller{configs: make(map[string]core.FlywheelConfig)}
}

// Config returns the effective configuration for a wallet.
func (c *Controller) Config(address string) core.FlywheelConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config(address)
}

func (c *Controller) config(address string) core.FlywheelConfig {
	if cfg, ok := c.configs[address]; ok {
		return cfg
	}
	return core.DefaultFlywheelConfig()
}

// UpdateConfig merges the signed diff into the wallet's configuration.
// Zero-valued fields in the diff leave the current value untouched.
func (c *Controller) UpdateConfig(ctx context.Context, address string, diff core.FlywheelConfig) (core.FlywheelConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.config(address)
	if !diff.FeeThresholdSOL.IsZero() {
		cfg.FeeThresholdSOL = diff.FeeThresholdSOL
	}
	if !diff.SellPercent.IsZero() {
		cfg.SellPercent = diff.SellPercent
	}
	if !diff.BuybackPercent.IsZero() {
		cfg.BuybackPercent = diff.BuybackPercent
	}
	if diff.IntervalSeconds != 0 {
		cfg.IntervalSeconds = diff.IntervalSeconds
	}
	c.configs[address] = cfg

	log.Info().Str("address", address).Msg("flywheel config updated")
	return cfg, nil
}

// ManualSell queues an immediate sell and returns the job reference.
func (c *Controller) ManualSell(ctx context.Context, address string, percent decimal.Decimal) (string, error) {
	if percent.LessThanOrEqual(decimal.Zero) || percent.GreaterThan(decimal.NewFromInt(100)) {
		return "", fmt.Errorf("sell percent must be in (0, 100], got %s", percent)
	}

	jobID := uuid.New().String()
	log.Info().
		Str("address", address).
		Str("percent", percent.String()).
		Str("job_id", jobID).
		Msg("manual sell queued")
	return jobID, nil
}

// Suspend pauses the wallet's flywheel.
func (c *Controller) Suspend(ctx context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.config(address)
	cfg.Suspended = true
	c.configs[address] = cfg

	log.Info().Str("address", address).Msg("flywheel suspended")
	return nil
}

// Resume restarts a suspended flywheel.
func (c *Controller) Resume(ctx context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.config(address)
	cfg.Suspended = false
	c.configs[address] = cfg

	log.Info().Str("address", address).Msg("flywheel resumed")
	return nil
}

var _ ports.FlywheelController = (*Controller)(nil)
