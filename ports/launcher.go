package ports

import (
	"context"

	"github.com/flywheel-fi/flywheel/core"
)

// LaunchResult reports what a side effect produced. Ref is the durable
// artifact (mint address, session id). TxSig, when set, is the ledger
// transaction that carried the effect; on an ambiguous failure it lets the
// executor check confirmation before retrying.
type LaunchResult struct {
	Ref   string
	TxSig string
}

// Launcher performs the one-time expensive side effect once an activation is
// funded. Each method may be slow and may fail after partial effect; a
// non-empty TxSig alongside an error marks the outcome as uncertain.
type Launcher interface {
	// LaunchToken mints and launches a token from the verified payload.
	LaunchToken(ctx context.Context, rec core.ActivationRecord) (LaunchResult, error)

	// StartMarketMaking starts a market-making session for the token named
	// in the verified payload.
	StartMarketMaking(ctx context.Context, rec core.ActivationRecord) (LaunchResult, error)
}
