package core

import "time"

// DefaultAccessTTL bounds how long an access token is honored.
const DefaultAccessTTL = 15 * time.Minute

// Session is minted when a wallet verifies an authenticate intent. It exists
// so the owner can poll and cancel their activations without re-signing on
// every request.
type Session struct {
	ID        string
	Address   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session access window has passed.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
