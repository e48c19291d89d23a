package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

// EVMVerifier verifies EIP-191 personal-sign signatures for owners who
// connect an EVM wallet. Balance watching stays on Solana; only the
// signature scheme differs.
type EVMVerifier struct{}

// NewEVMVerifier creates a new EVM signature verifier.
func NewEVMVerifier() *EVMVerifier {
	return &EVMVerifier{}
}

// VerifySignature recovers the signer of the personal-sign digest of message
// and compares it to address.
func (v *EVMVerifier) VerifySignature(address, message, signature string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %s", core.ErrInvalidAddress, address)
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", core.ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature must be %d bytes", core.ErrInvalidSignature, crypto.SignatureLength)
	}

	// Wallets emit V as 27/28; crypto.SigToPub expects 0/1.
	recoverySig := make([]byte, len(sig))
	copy(recoverySig, sig)
	if recoverySig[crypto.RecoveryIDOffset] >= 27 {
		recoverySig[crypto.RecoveryIDOffset] -= 27
	}

	digest := accounts.TextHash([]byte(message))
	pub, err := crypto.SigToPub(digest, recoverySig)
	if err != nil {
		return fmt.Errorf("%w: recovery failed", core.ErrInvalidSignature)
	}

	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return core.ErrInvalidSignature
	}
	return nil
}

// IsEVMAddress reports whether the address uses the 0x hex form.
func IsEVMAddress(address string) bool {
	return strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X")
}

var _ ports.SignatureVerifier = (*EVMVerifier)(nil)
