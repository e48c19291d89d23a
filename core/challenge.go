package core

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// DefaultChallengeTTL bounds how long a signed challenge is accepted.
const DefaultChallengeTTL = 5 * time.Minute

// Challenge is a single-use authorization nonce bound to the canonical hash
// of the action it authorizes. Verification fails if the challenge is
// consumed, expired, or presented with a payload whose hash differs from
// PayloadHash.
type Challenge struct {
	Token       string    `json:"token"`
	Address     string    `json:"address"`
	PayloadKind string    `json:"payload_kind"`
	PayloadHash string    `json:"payload_hash"`
	Message     string    `json:"message"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Consumed    bool      `json:"consumed"`
}

// Expired reports whether the challenge validity window has passed.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// NewChallenge builds a challenge for the given address and action payload.
// The signing message embeds the token and the payload hash so a signed
// message can never be replayed against a different payload.
func NewChallenge(address string, payload ActionPayload, ttl time.Duration) (Challenge, error) {
	token, err := newChallengeToken()
	if err != nil {
		return Challenge{}, fmt.Errorf("generate challenge token: %w", err)
	}

	hash, err := payload.Hash()
	if err != nil {
		return Challenge{}, err
	}

	now := time.Now().UTC()
	ch := Challenge{
		Token:       token,
		Address:     address,
		PayloadKind: payload.Kind,
		PayloadHash: hash,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
	ch.Message = signingMessage(ch)
	return ch, nil
}

// signingMessage renders the exact text the wallet is asked to sign. The
// format is stable: wallets display it, and verification hashes it verbatim.
func signingMessage(c Challenge) string {
	return fmt.Sprintf(
		"flywheel.fi wants you to authorize an action with wallet %s\n\n"+
			"Action: %s\n"+
			"Payload-Hash: %s\n"+
			"Nonce: %s\n"+
			"Issued-At: %s\n"+
			"Expires-At: %s",
		c.Address,
		c.PayloadKind,
		c.PayloadHash,
		c.Token,
		c.IssuedAt.Format(time.RFC3339),
		c.ExpiresAt.Format(time.RFC3339),
	)
}

func newChallengeToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
