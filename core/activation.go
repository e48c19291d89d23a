package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivationKind discriminates what the one-time side effect is.
type ActivationKind string

const (
	KindTokenLaunch  ActivationKind = "token_launch"
	KindMarketMaking ActivationKind = "market_making"
)

// ActivationStatus is the lifecycle state of an activation attempt.
type ActivationStatus string

const (
	StatusAwaitingDeposit ActivationStatus = "awaiting_deposit"
	StatusFunded          ActivationStatus = "funded_pending_execution"
	StatusExecuting       ActivationStatus = "executing"
	StatusCompleted       ActivationStatus = "completed"
	StatusRetryPending    ActivationStatus = "retry_pending"
	StatusFailed          ActivationStatus = "failed"
	StatusExpired         ActivationStatus = "expired"
	StatusCancelled       ActivationStatus = "cancelled"
	StatusRefunded        ActivationStatus = "refunded"
)

// DefaultMaxAttempts caps execution retries per activation.
const DefaultMaxAttempts = 3

// transitions is the authoritative edge table. A transition not listed here
// is invalid regardless of which caller requests it.
var transitions = map[ActivationStatus][]ActivationStatus{
	StatusAwaitingDeposit: {StatusFunded, StatusExpired, StatusCancelled},
	StatusFunded:          {StatusExecuting},
	StatusExecuting:       {StatusCompleted, StatusRetryPending, StatusFailed},
	StatusRetryPending:    {StatusExecuting, StatusRefunded},
	StatusFailed:          {StatusRefunded},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to ActivationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status admits no further transitions. failed is
// not terminal in the strict sense: it may still move to refunded.
func (s ActivationStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// Open reports whether the record still occupies the (owner, kind) slot.
// Exactly one open record per (owner, kind) may exist at a time.
func (s ActivationStatus) Open() bool {
	switch s {
	case StatusAwaitingDeposit, StatusFunded, StatusExecuting, StatusRetryPending:
		return true
	default:
		return false
	}
}

// ActivationRecord is one deposit-gated activation attempt. Mutation goes
// through guarded store transitions only, never ad-hoc field writes.
type ActivationRecord struct {
	ID             string           `json:"id"`
	OwnerAddress   string           `json:"owner_address"`
	DepositAddress string           `json:"deposit_address"`
	Kind           ActivationKind   `json:"kind"`
	Payload        ActionPayload    `json:"payload"`
	RequiredAmount decimal.Decimal  `json:"required_amount"`
	ObservedAmount decimal.Decimal  `json:"observed_amount"`
	Status         ActivationStatus `json:"status"`
	Attempts       int              `json:"attempts"`
	MaxAttempts    int              `json:"max_attempts"`
	LastError      string           `json:"last_error,omitempty"`

	// LastTxSig and PendingRef record a submitted ledger transaction whose
	// outcome was ambiguous, so a retry can check it instead of blindly
	// resubmitting.
	LastTxSig  string `json:"last_tx_sig,omitempty"`
	PendingRef string `json:"pending_ref,omitempty"`

	ResultRef      string    `json:"result_ref,omitempty"`
	ChallengeToken string    `json:"challenge_token,omitempty"`
	NextRetryAt    time.Time `json:"next_retry_at,omitzero"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Funded reports whether the observed balance satisfies the requirement.
func (r ActivationRecord) Funded() bool {
	return r.ObservedAmount.GreaterThanOrEqual(r.RequiredAmount)
}

// DeadlinePassed reports whether the funding deadline has elapsed.
func (r ActivationRecord) DeadlinePassed(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// AttemptsLeft reports whether another execution attempt is permitted.
func (r ActivationRecord) AttemptsLeft() bool {
	max := r.MaxAttempts
	if max == 0 {
		max = DefaultMaxAttempts
	}
	return r.Attempts < max
}

// ActivationEvent is published on every status transition.
type ActivationEvent struct {
	ActivationID string           `json:"activation_id"`
	OwnerAddress string           `json:"owner_address"`
	Kind         ActivationKind   `json:"kind"`
	From         ActivationStatus `json:"from"`
	To           ActivationStatus `json:"to"`
	ResultRef    string           `json:"result_ref,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
	At           time.Time        `json:"at"`
}

// AuthEvent is published when a signed intent is verified.
type AuthEvent struct {
	Address string    `json:"address"`
	Kind    string    `json:"kind"`
	Token   string    `json:"token"`
	At      time.Time `json:"at"`
}
