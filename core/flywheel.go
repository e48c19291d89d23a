package core

import "github.com/shopspring/decimal"

// FlywheelConfig is the per-token trading/fee-collection configuration a
// wallet holder controls. Changing any field requires a signed update_config
// intent; the payload hash covers the whole diff.
type FlywheelConfig struct {
	FeeThresholdSOL decimal.Decimal `json:"fee_threshold_sol"`
	SellPercent     decimal.Decimal `json:"sell_percent"`
	BuybackPercent  decimal.Decimal `json:"buyback_percent"`
	IntervalSeconds int             `json:"interval_seconds"`
	Suspended       bool            `json:"suspended"`
}

// DefaultFlywheelConfig returns the configuration a freshly launched token
// starts with.
func DefaultFlywheelConfig() FlywheelConfig {
	return FlywheelConfig{
		FeeThresholdSOL: decimal.NewFromFloat(0.1),
		SellPercent:     decimal.NewFromInt(100),
		BuybackPercent:  decimal.Zero,
		IntervalSeconds: 300,
	}
}

// ManualSellRequest is the body of a manual_sell action payload.
type ManualSellRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

// TokenMetadata is the body of a launch_token action payload.
type TokenMetadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	URI         string `json:"uri"`
	Description string `json:"description,omitempty"`
}

// MarketMakingParams is the body of a start_market_making action payload.
type MarketMakingParams struct {
	Mint        string          `json:"mint"`
	Strategy    string          `json:"strategy"`
	BudgetSOL   decimal.Decimal `json:"budget_sol"`
	MaxSlippage decimal.Decimal `json:"max_slippage,omitempty"`
}
