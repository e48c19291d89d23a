package launch

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

// Well-known program IDs for the pump.fun launch path.
var (
	pumpProgramID       = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	pumpEventAuthority  = solana.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")
	metadataProgramID   = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
	associatedTokenProg = solana.SPLAssociatedTokenAccountProgramID
)

// createDiscriminator is the anchor discriminator of pump.fun's create
// instruction (sha256("global:create")[:8]).
var createDiscriminator = []byte{24, 30, 200, 40, 5, 28, 7, 119}

// PumpLauncher performs the funded side effects: minting and launching a
// token through the pump.fun program, and registering market-making
// sessions. Transactions are built here and broadcast through the ledger
// gateway so confirmation checking stays in one place.
type PumpLauncher struct {
	rpc    *rpc.Client
	ledger ports.Ledger
	wallet solana.PrivateKey
}

// NewPumpLauncher creates a launcher signing with the platform ops wallet.
func NewPumpLauncher(rpcClient *rpc.Client, ledger ports.Ledger, wallet solana.PrivateKey) *PumpLauncher {
	return &PumpLauncher{rpc: rpcClient, ledger: ledger, wallet: wallet}
}

// LaunchToken mints a fresh keypair and submits the pump.fun create
// transaction carrying the verified token metadata. The returned TxSig is
// set even when submission errors after broadcast, so the executor can check
// confirmation instead of resubmitting.
func (l *PumpLauncher) LaunchToken(ctx context.Context, rec core.ActivationRecord) (ports.LaunchResult, error) {
	var meta core.TokenMetadata
	if err := json.Unmarshal(rec.Payload.Body, &meta); err != nil {
		return ports.LaunchResult{}, fmt.Errorf("decode token metadata: %w", err)
	}
	if meta.Name == "" || meta.Symbol == "" {
		return ports.LaunchResult{}, fmt.Errorf("token metadata missing name or symbol")
	}

	mint := solana.NewWallet()
	ix, err := l.createInstruction(mint.PublicKey(), meta)
	if err != nil {
		return ports.LaunchResult{}, err
	}

	recent, err := l.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return ports.LaunchResult{}, fmt.Errorf("get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		recent.Value.Blockhash,
		solana.TransactionPayer(l.wallet.PublicKey()),
	)
	if err != nil {
		return ports.LaunchResult{}, fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		switch key {
		case l.wallet.PublicKey():
			return &l.wallet
		case mint.PublicKey():
			return &mint.PrivateKey
		default:
			return nil
		}
	})
	if err != nil {
		return ports.LaunchResult{}, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return ports.LaunchResult{}, fmt.Errorf("serialize transaction: %w", err)
	}

	result := ports.LaunchResult{Ref: mint.PublicKey().String()}

	sig, err := l.ledger.SubmitTransaction(ctx, raw)
	result.TxSig = sig
	if err != nil {
		return result, fmt.Errorf("submit launch transaction: %w", err)
	}

	log.Info().
		Str("mint", result.Ref).
		Str("tx_sig", sig).
		Str("owner", rec.OwnerAddress).
		Msg("token launch submitted")
	return result, nil
}

// StartMarketMaking registers a session for the token named in the payload.
// The trading engine consumes the activation event; the session id is the
// durable artifact.
func (l *PumpLauncher) StartMarketMaking(ctx context.Context, rec core.ActivationRecord) (ports.LaunchResult, error) {
	var params core.MarketMakingParams
	if err := json.Unmarshal(rec.Payload.Body, &params); err != nil {
		return ports.LaunchResult{}, fmt.Errorf("decode market-making params: %w", err)
	}
	if params.Mint == "" {
		return ports.LaunchResult{}, fmt.Errorf("market-making params missing mint")
	}
	if _, err := solana.PublicKeyFromBase58(params.Mint); err != nil {
		return ports.LaunchResult{}, fmt.Errorf("%w: %s", core.ErrInvalidAddress, params.Mint)
	}

	sessionID := uuid.New().String()
	log.Info().
		Str("session_id", sessionID).
		Str("mint", params.Mint).
		Str("strategy", params.Strategy).
		Str("owner", rec.OwnerAddress).
		Msg("market-making session started")
	return ports.LaunchResult{Ref: sessionID}, nil
}

// createInstruction assembles the pump.fun create instruction for a new
// mint: borsh-encoded (name, symbol, uri, creator) behind the anchor
// discriminator, with the PDA accounts the program expects.
func (l *PumpLauncher) createInstruction(mint solana.PublicKey, meta core.TokenMetadata) (solana.Instruction, error) {
	mintAuthority, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("mint-authority")}, pumpProgramID)
	if err != nil {
		return nil, fmt.Errorf("derive mint authority: %w", err)
	}

	bondingCurve, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("bonding-curve"), mint.Bytes()}, pumpProgramID)
	if err != nil {
		return nil, fmt.Errorf("derive bonding curve: %w", err)
	}

	associatedBondingCurve, _, err := solana.FindAssociatedTokenAddress(bondingCurve, mint)
	if err != nil {
		return nil, fmt.Errorf("derive curve token account: %w", err)
	}

	global, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("global")}, pumpProgramID)
	if err != nil {
		return nil, fmt.Errorf("derive global: %w", err)
	}

	metadata, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("metadata"), metadataProgramID.Bytes(), mint.Bytes()},
		metadataProgramID)
	if err != nil {
		return nil, fmt.Errorf("derive metadata: %w", err)
	}

	var data bytes.Buffer
	data.Write(createDiscriminator)
	writeBorshString(&data, meta.Name)
	writeBorshString(&data, meta.Symbol)
	writeBorshString(&data, meta.URI)
	data.Write(l.wallet.PublicKey().Bytes())

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, true),
		solana.NewAccountMeta(mintAuthority, false, false),
		solana.NewAccountMeta(bondingCurve, true, false),
		solana.NewAccountMeta(associatedBondingCurve, true, false),
		solana.NewAccountMeta(global, false, false),
		solana.NewAccountMeta(metadataProgramID, false, false),
		solana.NewAccountMeta(metadata, true, false),
		solana.NewAccountMeta(l.wallet.PublicKey(), true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(associatedTokenProg, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(pumpEventAuthority, false, false),
		solana.NewAccountMeta(pumpProgramID, false, false),
	}

	return solana.NewInstruction(pumpProgramID, accounts, data.Bytes()), nil
}

// writeBorshString writes a u32 length-prefixed UTF-8 string.
func writeBorshString(buf *bytes.Buffer, s string) {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(s)))
	buf.Write(length[:])
	buf.WriteString(s)
}

var _ ports.Launcher = (*PumpLauncher)(nil)
