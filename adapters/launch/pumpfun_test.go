package launch

import (
	"bytes"
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-fi/flywheel/adapters/ledger"
	"github.com/flywheel-fi/flywheel/core"
)

func newTestLauncher() *PumpLauncher {
	wallet := solana.NewWallet()
	return NewPumpLauncher(rpc.New("http://localhost:8899"), ledger.NewStubLedger(), wallet.PrivateKey)
}

func launchRecord(body string) core.ActivationRecord {
	return core.ActivationRecord{
		ID:           "a-1",
		OwnerAddress: "wallet-1",
		Kind:         core.KindTokenLaunch,
		Payload:      core.ActionPayload{Kind: core.ActionLaunchToken, Body: []byte(body)},
	}
}

func TestLaunchTokenRejectsBadMetadata(t *testing.T) {
	l := newTestLauncher()
	ctx := context.Background()

	_, err := l.LaunchToken(ctx, launchRecord(`{not json`))
	assert.Error(t, err)

	_, err = l.LaunchToken(ctx, launchRecord(`{"name":"","symbol":"TST","uri":"u"}`))
	assert.Error(t, err)

	_, err = l.LaunchToken(ctx, launchRecord(`{"name":"Test","symbol":"","uri":"u"}`))
	assert.Error(t, err)
}

func TestCreateInstruction(t *testing.T) {
	l := newTestLauncher()
	mint := solana.NewWallet().PublicKey()

	ix, err := l.createInstruction(mint, core.TokenMetadata{
		Name:   "Test Token",
		Symbol: "TST",
		URI:    "https://example.com/meta.json",
	})
	require.NoError(t, err)

	assert.Equal(t, pumpProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, createDiscriminator))
	assert.Contains(t, string(data), "Test Token")
	assert.Contains(t, string(data), "TST")

	// The mint is the first account and must sign.
	accounts := ix.Accounts()
	require.NotEmpty(t, accounts)
	assert.Equal(t, mint, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsSigner)
}

func TestStartMarketMaking(t *testing.T) {
	l := newTestLauncher()
	ctx := context.Background()

	mint := solana.NewWallet().PublicKey().String()
	rec := core.ActivationRecord{
		ID:      "a-1",
		Kind:    core.KindMarketMaking,
		Payload: core.ActionPayload{Kind: core.ActionStartMarket, Body: []byte(`{"mint":"` + mint + `","strategy":"spread","budget_sol":"1"}`)},
	}

	result, err := l.StartMarketMaking(ctx, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Ref)
}

func TestStartMarketMakingRejectsBadMint(t *testing.T) {
	l := newTestLauncher()
	ctx := context.Background()

	rec := core.ActivationRecord{
		Payload: core.ActionPayload{Kind: core.ActionStartMarket, Body: []byte(`{"mint":"","strategy":"spread"}`)},
	}
	_, err := l.StartMarketMaking(ctx, rec)
	assert.Error(t, err)

	rec.Payload.Body = []byte(`{"mint":"not-base58-%%","strategy":"spread"}`)
	_, err = l.StartMarketMaking(ctx, rec)
	assert.ErrorIs(t, err, core.ErrInvalidAddress)
}
