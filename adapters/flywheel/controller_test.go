package flywheel

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-fi/flywheel/core"
)

func TestUpdateConfigMergesDiff(t *testing.T) {
	c := NewController()
	ctx := context.Background()

	cfg, err := c.UpdateConfig(ctx, "wallet-1", core.FlywheelConfig{
		FeeThresholdSOL: decimal.RequireFromString("0.25"),
	})
	require.NoError(t, err)

	// Only the named field moved; the others keep their defaults.
	assert.Equal(t, "0.25", cfg.FeeThresholdSOL.String())
	assert.Equal(t, "100", cfg.SellPercent.String())
	assert.Equal(t, 300, cfg.IntervalSeconds)

	// A second diff builds on the stored config, not the defaults.
	cfg, err = c.UpdateConfig(ctx, "wallet-1", core.FlywheelConfig{IntervalSeconds: 60})
	require.NoError(t, err)
	assert.Equal(t, "0.25", cfg.FeeThresholdSOL.String())
	assert.Equal(t, 60, cfg.IntervalSeconds)
}

func TestUpdateConfigPerWallet(t *testing.T) {
	c := NewController()
	ctx := context.Background()

	_, err := c.UpdateConfig(ctx, "wallet-1", core.FlywheelConfig{IntervalSeconds: 60})
	require.NoError(t, err)

	assert.Equal(t, 60, c.Config("wallet-1").IntervalSeconds)
	assert.Equal(t, 300, c.Config("wallet-2").IntervalSeconds)
}

func TestManualSellBounds(t *testing.T) {
	c := NewController()
	ctx := context.Background()

	jobID, err := c.ManualSell(ctx, "wallet-1", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	_, err = c.ManualSell(ctx, "wallet-1", decimal.Zero)
	assert.Error(t, err)
	_, err = c.ManualSell(ctx, "wallet-1", decimal.NewFromInt(-5))
	assert.Error(t, err)
	_, err = c.ManualSell(ctx, "wallet-1", decimal.NewFromInt(101))
	assert.Error(t, err)
	_, err = c.ManualSell(ctx, "wallet-1", decimal.NewFromInt(100))
	assert.NoError(t, err)
}

func TestSuspendResume(t *testing.T) {
	c := NewController()
	ctx := context.Background()

	require.NoError(t, c.Suspend(ctx, "wallet-1"))
	assert.True(t, c.Config("wallet-1").Suspended)

	require.NoError(t, c.Resume(ctx, "wallet-1"))
	assert.False(t, c.Config("wallet-1").Suspended)
}
