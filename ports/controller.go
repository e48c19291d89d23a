package ports

import (
	"context"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/shopspring/decimal"
)

// FlywheelController applies the immediate privileged mutations a verified
// intent authorizes. The trading engine behind it is an external
// collaborator; the core only needs these entry points.
type FlywheelController interface {
	// UpdateConfig merges the signed config diff and returns the resulting
	// configuration.
	UpdateConfig(ctx context.Context, address string, diff core.FlywheelConfig) (core.FlywheelConfig, error)

	// ManualSell queues an immediate sell of percent of the position and
	// returns a reference to the queued job.
	ManualSell(ctx context.Context, address string, percent decimal.Decimal) (string, error)

	// Suspend pauses the flywheel for the wallet's token.
	Suspend(ctx context.Context, address string) error

	// Resume restarts a suspended flywheel.
	Resume(ctx context.Context, address string) error
}
