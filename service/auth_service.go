package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

// AuthService is the signature authorizer: it issues payload-bound
// challenges and verifies returned signatures. Its job ends at producing a
// VerifiedIntent; the only state it mutates is the challenge store.
type AuthService struct {
	challenges ports.ChallengeStore
	verifier   ports.SignatureVerifier
	limiter    ports.RateLimiter
	events     ports.EventPublisher
	controller ports.FlywheelController
	tokenizer  ports.Tokenizer

	challengeTTL time.Duration
	accessTTL    time.Duration
	rateLimit    int
	rateWindow   time.Duration
}

// AuthOption customizes an AuthService.
type AuthOption func(*AuthService)

// WithChallengeTTL overrides the challenge validity window.
func WithChallengeTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) { s.challengeTTL = ttl }
}

// WithAccessTTL overrides the session access token lifetime.
func WithAccessTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) { s.accessTTL = ttl }
}

// WithRateLimit overrides the per-address challenge issuance limit.
func WithRateLimit(limit int, window time.Duration) AuthOption {
	return func(s *AuthService) {
		s.rateLimit = limit
		s.rateWindow = window
	}
}

// NewAuthService creates a new signature authorizer.
func NewAuthService(
	challenges ports.ChallengeStore,
	verifier ports.SignatureVerifier,
	limiter ports.RateLimiter,
	events ports.EventPublisher,
	controller ports.FlywheelController,
	tokenizer ports.Tokenizer,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		challenges:   challenges,
		verifier:     verifier,
		limiter:      limiter,
		events:       events,
		controller:   controller,
		tokenizer:    tokenizer,
		challengeTTL: core.DefaultChallengeTTL,
		accessTTL:    core.DefaultAccessTTL,
		rateLimit:    5,
		rateWindow:   time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestChallenge issues a challenge bound to the canonical hash of the
// action payload. An empty payload kind defaults to plain authentication.
func (s *AuthService) RequestChallenge(ctx context.Context, address string, payload core.ActionPayload) (core.Challenge, error) {
	if address == "" {
		return core.Challenge{}, core.ErrInvalidAddress
	}
	if payload.Kind == "" {
		payload.Kind = core.ActionAuthenticate
	}

	allowed, err := s.limiter.Allow(ctx, address, s.rateLimit, s.rateWindow)
	if err != nil {
		return core.Challenge{}, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		return core.Challenge{}, core.ErrRateLimited
	}

	ch, err := core.NewChallenge(address, payload, s.challengeTTL)
	if err != nil {
		return core.Challenge{}, err
	}

	if err := s.challenges.Put(ctx, ch); err != nil {
		return core.Challenge{}, fmt.Errorf("store challenge: %w", err)
	}

	log.Debug().
		Str("address", address).
		Str("kind", payload.Kind).
		Time("expires_at", ch.ExpiresAt).
		Msg("challenge issued")
	return ch, nil
}

// Verify checks the returned signature against the stored challenge and the
// presented payload, consuming the challenge exactly once on success. The
// consume is the last gate: a bad signature must not burn the challenge, and
// of two concurrent valid verifications only one can win the CAS.
func (s *AuthService) Verify(ctx context.Context, address, token, signature string, payload core.ActionPayload) (core.VerifiedIntent, error) {
	if payload.Kind == "" {
		payload.Kind = core.ActionAuthenticate
	}

	ch, err := s.challenges.Get(ctx, token)
	if err != nil {
		return core.VerifiedIntent{}, err
	}

	// A token issued to a different wallet is as good as unknown.
	if ch.Address != address {
		return core.VerifiedIntent{}, core.ErrChallengeNotFound
	}
	if ch.Expired(time.Now()) {
		return core.VerifiedIntent{}, core.ErrChallengeExpired
	}
	if ch.Consumed {
		return core.VerifiedIntent{}, core.ErrChallengeAlreadyUsed
	}

	hash, err := payload.Hash()
	if err != nil {
		return core.VerifiedIntent{}, err
	}
	if hash != ch.PayloadHash {
		return core.VerifiedIntent{}, core.ErrPayloadMismatch
	}

	if err := s.verifier.VerifySignature(address, ch.Message, signature); err != nil {
		return core.VerifiedIntent{}, err
	}

	if err := s.challenges.Consume(ctx, token); err != nil {
		return core.VerifiedIntent{}, err
	}

	if err := s.events.PublishAuth(ctx, core.AuthEvent{
		Address: address,
		Kind:    payload.Kind,
		Token:   token,
		At:      time.Now().UTC(),
	}); err != nil {
		// The intent is already verified; event delivery is best effort.
		log.Warn().Err(err).Str("address", address).Msg("failed to publish auth event")
	}

	log.Info().
		Str("address", address).
		Str("kind", payload.Kind).
		Msg("signed intent verified")
	return core.VerifiedIntent{Address: address, Payload: payload}, nil
}

// ApplyResult is what verify-and-apply returns to the caller.
type ApplyResult struct {
	Kind        string      `json:"kind"`
	AccessToken string      `json:"access_token,omitempty"`
	Result      interface{} `json:"result,omitempty"`
}

// VerifyAndApply verifies the signed intent and immediately applies the
// privileged action it authorizes. Deposit-gated kinds are rejected here;
// they go through the activation registry.
func (s *AuthService) VerifyAndApply(ctx context.Context, address, token, signature string, payload core.ActionPayload) (*ApplyResult, error) {
	intent, err := s.Verify(ctx, address, token, signature, payload)
	if err != nil {
		return nil, err
	}

	switch intent.Payload.Kind {
	case core.ActionAuthenticate:
		accessToken, err := s.mintSession(intent.Address)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{Kind: intent.Payload.Kind, AccessToken: accessToken}, nil

	case core.ActionUpdateConfig:
		var diff core.FlywheelConfig
		if err := json.Unmarshal(intent.Payload.Body, &diff); err != nil {
			return nil, fmt.Errorf("decode config diff: %w", err)
		}
		cfg, err := s.controller.UpdateConfig(ctx, intent.Address, diff)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{Kind: intent.Payload.Kind, Result: cfg}, nil

	case core.ActionManualSell:
		var req core.ManualSellRequest
		if err := json.Unmarshal(intent.Payload.Body, &req); err != nil {
			return nil, fmt.Errorf("decode sell request: %w", err)
		}
		jobID, err := s.controller.ManualSell(ctx, intent.Address, req.Percent)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{Kind: intent.Payload.Kind, Result: jobID}, nil

	case core.ActionSuspend:
		if err := s.controller.Suspend(ctx, intent.Address); err != nil {
			return nil, err
		}
		return &ApplyResult{Kind: intent.Payload.Kind}, nil

	case core.ActionResume:
		if err := s.controller.Resume(ctx, intent.Address); err != nil {
			return nil, err
		}
		return &ApplyResult{Kind: intent.Payload.Kind}, nil

	case core.ActionLaunchToken, core.ActionStartMarket:
		return nil, fmt.Errorf("%w: %s requires a deposit-gated activation", core.ErrUnknownAction, intent.Payload.Kind)

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownAction, intent.Payload.Kind)
	}
}

// ValidateAccessToken parses a bearer token into the session it represents.
func (s *AuthService) ValidateAccessToken(token string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(token)
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now()) {
		return nil, core.ErrTokenExpired
	}
	return session, nil
}

func (s *AuthService) mintSession(address string) (string, error) {
	now := time.Now().UTC()
	session := &core.Session{
		ID:        uuid.New().String(),
		Address:   address,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	}
	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return "", fmt.Errorf("mint session token: %w", err)
	}
	return accessToken, nil
}
