package ledger

import "github.com/flywheel-fi/flywheel/ports"

// VerifierMux routes signature verification by address form: 0x-prefixed
// addresses use the EVM scheme, everything else the Solana scheme.
type VerifierMux struct {
	solana ports.SignatureVerifier
	evm    ports.SignatureVerifier
}

// NewVerifierMux creates a mux over the two schemes.
func NewVerifierMux(solana, evm ports.SignatureVerifier) *VerifierMux {
	return &VerifierMux{solana: solana, evm: evm}
}

// VerifySignature dispatches to the scheme matching the address form.
func (m *VerifierMux) VerifySignature(address, message, signature string) error {
	if IsEVMAddress(address) {
		return m.evm.VerifySignature(address, message, signature)
	}
	return m.solana.VerifySignature(address, message, signature)
}

var _ ports.SignatureVerifier = (*VerifierMux)(nil)
