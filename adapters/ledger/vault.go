package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/flywheel-fi/flywheel/ports"
)

// KeySink durably stores a deposit private key under its address, so the
// custody keys survive a process restart.
type KeySink interface {
	StoreDepositKey(ctx context.Context, address, privateKey string) error
}

// DepositVault mints a fresh Solana keypair per activation and retains the
// private key for the later fund sweep or refund. sink may be nil, in which
// case keys live only in process memory.
type DepositVault struct {
	sink KeySink

	mu   sync.Mutex
	keys map[string]solana.PrivateKey
}

// NewDepositVault creates a vault. sink may be nil.
func NewDepositVault(sink KeySink) *DepositVault {
	return &DepositVault{
		sink: sink,
		keys: make(map[string]solana.PrivateKey),
	}
}

// AllocateDepositAddress generates a keypair and returns its address. The
// key is persisted before the address is handed out.
func (v *DepositVault) AllocateDepositAddress(ctx context.Context) (string, error) {
	wallet := solana.NewWallet()
	address := wallet.PublicKey().String()

	if v.sink != nil {
		if err := v.sink.StoreDepositKey(ctx, address, wallet.PrivateKey.String()); err != nil {
			return "", fmt.Errorf("persist deposit key: %w", err)
		}
	}

	v.mu.Lock()
	v.keys[address] = wallet.PrivateKey
	v.mu.Unlock()
	return address, nil
}

// Key returns the private key held for a deposit address.
func (v *DepositVault) Key(address string) (solana.PrivateKey, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key, ok := v.keys[address]
	return key, ok
}

var _ ports.DepositAllocator = (*DepositVault)(nil)
