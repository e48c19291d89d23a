package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

// StubLedger is an in-memory ledger gateway for tests and development.
type StubLedger struct {
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	txStatus  map[string]ports.TxStatus
	validSigs map[string]string // signature -> message it covers
	failNext  int
	submitted [][]byte
	nextSig   string
	allocated int
}

// NewStubLedger creates an empty stub ledger.
func NewStubLedger() *StubLedger {
	return &StubLedger{
		balances:  make(map[string]decimal.Decimal),
		txStatus:  make(map[string]ports.TxStatus),
		validSigs: make(map[string]string),
		nextSig:   "stub-sig",
	}
}

// SetBalance sets the balance returned for an address.
func (s *StubLedger) SetBalance(address string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] = amount
}

// FailNext makes the next n balance queries and submissions fail.
func (s *StubLedger) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// SetTxStatus sets the status reported for a transaction signature.
func (s *StubLedger) SetTxStatus(sig string, status ports.TxStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txStatus[sig] = status
}

// AcceptSignature registers a (signature, message) pair VerifySignature will
// accept for any address.
func (s *StubLedger) AcceptSignature(signature, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validSigs[signature] = message
}

func (s *StubLedger) takeFailure() bool {
	if s.failNext > 0 {
		s.failNext--
		return true
	}
	return false
}

// GetBalance returns the configured balance, or zero for unknown addresses.
func (s *StubLedger) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.takeFailure() {
		return decimal.Zero, errors.New("stub ledger: balance query failed")
	}
	return s.balances[address], nil
}

// SubmitTransaction records the submission and returns the configured
// signature.
func (s *StubLedger) SubmitTransaction(ctx context.Context, rawTx []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.takeFailure() {
		return "", errors.New("stub ledger: submit failed")
	}
	s.submitted = append(s.submitted, rawTx)
	return s.nextSig, nil
}

// GetTransactionStatus returns the configured status, defaulting to unknown.
func (s *StubLedger) GetTransactionStatus(ctx context.Context, sig string) (ports.TxStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.txStatus[sig]; ok {
		return st, nil
	}
	return ports.TxStatusUnknown, nil
}

// AllocateDepositAddress hands out sequential unique addresses, each
// starting at a zero balance.
func (s *StubLedger) AllocateDepositAddress(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allocated++
	return fmt.Sprintf("deposit-stub-%d", s.allocated), nil
}

// VerifySignature accepts only signatures registered with AcceptSignature,
// and only over the registered message.
func (s *StubLedger) VerifySignature(address, message, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if covered, ok := s.validSigs[signature]; ok && covered == message {
		return nil
	}
	return core.ErrInvalidSignature
}

var (
	_ ports.Ledger            = (*StubLedger)(nil)
	_ ports.SignatureVerifier = (*StubLedger)(nil)
	_ ports.DepositAllocator  = (*StubLedger)(nil)
)
