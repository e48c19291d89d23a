package ports

import (
	"context"
	"time"

	"github.com/flywheel-fi/flywheel/core"
)

// ChallengeStore holds short-lived, single-use challenge records keyed by
// token. Expired entries may be garbage-collected lazily or by TTL.
type ChallengeStore interface {
	// Put stores a challenge until its expiry.
	Put(ctx context.Context, ch core.Challenge) error

	// Get returns the challenge for a token, or core.ErrChallengeNotFound.
	Get(ctx context.Context, token string) (core.Challenge, error)

	// Consume atomically flips the consumed flag. It returns
	// core.ErrChallengeAlreadyUsed if the flag was already set and
	// core.ErrChallengeNotFound if the token is unknown. Two concurrent
	// callers must never both succeed.
	Consume(ctx context.Context, token string) error
}

// ActivationStore is the durable registry of activation attempts. All status
// mutation goes through Transition, a guarded compare-and-swap.
type ActivationStore interface {
	// Create stores a new record. It fails with
	// core.ErrActivationAlreadyOpen when a record for the same
	// (owner, kind) is still open.
	Create(ctx context.Context, rec core.ActivationRecord) error

	// Get returns a record by id, or core.ErrActivationNotFound.
	Get(ctx context.Context, id string) (core.ActivationRecord, error)

	// ListOpen returns every record in a non-terminal status.
	ListOpen(ctx context.Context) ([]core.ActivationRecord, error)

	// Transition atomically moves the record from one of the given source
	// statuses, applying mutate to the record while it holds the row. It
	// fails with core.ErrInvalidState when the record is in none of the
	// source statuses, serializing concurrent callers. mutate must set the
	// new Status; the store rejects edges absent from the transition table.
	Transition(ctx context.Context, id string, from []core.ActivationStatus, mutate func(*core.ActivationRecord)) (core.ActivationRecord, error)
}

// RateLimiter bounds challenge issuance per wallet address.
type RateLimiter interface {
	// Allow reports whether one more request is admitted for key within
	// the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
