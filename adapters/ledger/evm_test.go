package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-fi/flywheel/core"
)

func signPersonal(t *testing.T, message string) (address, signature string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	// Normalize V to the 27/28 form wallets emit.
	sig[crypto.RecoveryIDOffset] += 27

	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig)
}

func TestEVMVerifySignature(t *testing.T) {
	v := NewEVMVerifier()
	message := "flywheel.fi wants you to authorize an action with wallet 0xabc"

	address, signature := signPersonal(t, message)
	assert.NoError(t, v.VerifySignature(address, message, signature))
}

func TestEVMVerifySignatureWrongMessage(t *testing.T) {
	v := NewEVMVerifier()

	address, signature := signPersonal(t, "the signed message")
	err := v.VerifySignature(address, "a different message", signature)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestEVMVerifySignatureWrongSigner(t *testing.T) {
	v := NewEVMVerifier()
	message := "the signed message"

	_, signature := signPersonal(t, message)
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	err = v.VerifySignature(crypto.PubkeyToAddress(otherKey.PublicKey).Hex(), message, signature)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestEVMVerifySignatureMalformed(t *testing.T) {
	v := NewEVMVerifier()
	address, _ := signPersonal(t, "msg")

	assert.ErrorIs(t, v.VerifySignature(address, "msg", "not-hex"), core.ErrInvalidSignature)
	assert.ErrorIs(t, v.VerifySignature(address, "msg", "0xdead"), core.ErrInvalidSignature)
	assert.ErrorIs(t, v.VerifySignature("not-an-address", "msg", "0xdead"), core.ErrInvalidAddress)
}

func TestIsEVMAddress(t *testing.T) {
	assert.True(t, IsEVMAddress("0x52908400098527886E0F7030069857D2E4169EE7"))
	assert.True(t, IsEVMAddress("0X52908400098527886E0F7030069857D2E4169EE7"))
	assert.False(t, IsEVMAddress("4Nd1mY5CURremNkSr9zD9Nu3Wdfq6uVxCrzGqvcUCzw7"))
	assert.False(t, IsEVMAddress(""))
}
