package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	stored map[string]string
	err    error
}

func (s *recordingSink) StoreDepositKey(ctx context.Context, address, privateKey string) error {
	if s.err != nil {
		return s.err
	}
	if s.stored == nil {
		s.stored = make(map[string]string)
	}
	s.stored[address] = privateKey
	return nil
}

func TestDepositVaultAllocatesDistinctAddresses(t *testing.T) {
	v := NewDepositVault(nil)
	ctx := context.Background()

	a, err := v.AllocateDepositAddress(ctx)
	require.NoError(t, err)
	b, err := v.AllocateDepositAddress(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	// Each address parses as a real Solana public key and its private key
	// is retained for the later sweep.
	_, err = solana.PublicKeyFromBase58(a)
	require.NoError(t, err)
	key, ok := v.Key(a)
	require.True(t, ok)
	assert.Equal(t, a, key.PublicKey().String())
}

func TestDepositVaultPersistsThroughSink(t *testing.T) {
	sink := &recordingSink{}
	v := NewDepositVault(sink)
	ctx := context.Background()

	addr, err := v.AllocateDepositAddress(ctx)
	require.NoError(t, err)
	assert.Contains(t, sink.stored, addr)
}

func TestDepositVaultSinkFailureStopsAllocation(t *testing.T) {
	v := NewDepositVault(&recordingSink{err: errors.New("redis down")})

	_, err := v.AllocateDepositAddress(context.Background())
	assert.Error(t, err)
}
