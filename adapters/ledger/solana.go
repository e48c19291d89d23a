package ledger

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

// lamportsPerSOL is the native unit scale.
const lamportsExponent = -9

// SolanaLedger is the ports.Ledger adapter over a Solana JSON-RPC endpoint.
// It also verifies ed25519 wallet signatures for base58 addresses.
type SolanaLedger struct {
	rpc *rpc.Client
}

// NewSolanaLedger creates a ledger gateway for the given RPC endpoint.
func NewSolanaLedger(endpoint string) *SolanaLedger {
	return &SolanaLedger{rpc: rpc.New(endpoint)}
}

// GetBalance returns the SOL balance of an address.
func (l *SolanaLedger) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", core.ErrInvalidAddress, address)
	}

	out, err := l.rpc.GetBalance(ctx, pk, rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance %s: %w", address, err)
	}

	lamports := new(big.Int).SetUint64(out.Value)
	return decimal.NewFromBigInt(lamports, lamportsExponent), nil
}

// SubmitTransaction broadcasts a serialized signed transaction.
func (l *SolanaLedger) SubmitTransaction(ctx context.Context, rawTx []byte) (string, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(rawTx))
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}

	sig, err := l.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return sig.String(), nil
}

// GetTransactionStatus maps Solana confirmation state onto the tri-state the
// executor needs. "processed" is still reorg-able and reported as unknown.
func (l *SolanaLedger) GetTransactionStatus(ctx context.Context, sigStr string) (ports.TxStatus, error) {
	sig, err := solana.SignatureFromBase58(sigStr)
	if err != nil {
		return ports.TxStatusUnknown, fmt.Errorf("decode signature: %w", err)
	}

	out, err := l.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return ports.TxStatusUnknown, fmt.Errorf("get signature status: %w", err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return ports.TxStatusUnknown, nil
	}

	st := out.Value[0]
	if st.Err != nil {
		return ports.TxStatusFailed, nil
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return ports.TxStatusConfirmed, nil
	default:
		return ports.TxStatusUnknown, nil
	}
}

// VerifySignature checks an ed25519 signature over exactly message.
func (l *SolanaLedger) VerifySignature(address, message, signature string) error {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrInvalidAddress, address)
	}

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", core.ErrInvalidSignature)
	}

	if !ed25519.Verify(ed25519.PublicKey(pk[:]), []byte(message), sig[:]) {
		return core.ErrInvalidSignature
	}
	return nil
}

var (
	_ ports.Ledger            = (*SolanaLedger)(nil)
	_ ports.SignatureVerifier = (*SolanaLedger)(nil)
)
