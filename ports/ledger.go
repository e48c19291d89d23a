package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// TxStatus is the confirmation state of a submitted ledger transaction.
type TxStatus string

const (
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
	TxStatusUnknown   TxStatus = "unknown"
)

// Ledger is the gateway to the external chain: balance observation and
// transaction submission/confirmation. Calls block on network I/O and must
// honor ctx cancellation.
type Ledger interface {
	// GetBalance returns the current balance of an address in whole native
	// units (SOL).
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)

	// SubmitTransaction broadcasts a signed transaction and returns its
	// signature.
	SubmitTransaction(ctx context.Context, rawTx []byte) (string, error)

	// GetTransactionStatus distinguishes "definitely failed, safe to
	// retry" from "confirmed" and "unknown, do not retry blindly".
	GetTransactionStatus(ctx context.Context, sig string) (TxStatus, error)
}

// SignatureVerifier checks that signature was produced by address over
// exactly message, using the ledger's signature scheme.
type SignatureVerifier interface {
	VerifySignature(address, message, signature string) error
}

// DepositAllocator mints a dedicated deposit address for one activation.
// Each record watches its own address, so one wallet's deposit can never
// satisfy another record's funding threshold.
type DepositAllocator interface {
	AllocateDepositAddress(ctx context.Context) (string, error)
}
