package core

import "errors"

// Client protocol errors. Always surfaced to the caller as a rejected
// request, never retried automatically.
var (
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrChallengeExpired     = errors.New("challenge has expired")
	ErrChallengeAlreadyUsed = errors.New("challenge has already been used")
	ErrPayloadMismatch      = errors.New("action payload does not match challenge")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrRateLimited          = errors.New("too many challenge requests")
	ErrInvalidAddress       = errors.New("invalid wallet address")
	ErrUnknownAction        = errors.New("unknown action kind")
)

// State-conflict errors. Indicate a client ordering mistake or a legitimate
// race; the caller should re-query and retry.
var (
	ErrActivationNotFound    = errors.New("activation not found")
	ErrActivationAlreadyOpen = errors.New("an activation of this kind is already open for this wallet")
	ErrInvalidState          = errors.New("activation is not in a valid state for this transition")
	ErrNotFundedYet          = errors.New("activation is not funded yet")
	ErrMaxAttemptsExceeded   = errors.New("execution attempts exhausted")
	ErrNotOwner              = errors.New("wallet does not own this activation")
)

// Session token errors.
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrInvalidToken = errors.New("invalid token")
)
