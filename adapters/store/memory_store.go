package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

// MemoryChallengeStore is an in-memory ChallengeStore. Expired entries are
// dropped lazily on read.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]core.Challenge
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]core.Challenge),
	}
}

// Put stores a challenge keyed by its token.
func (s *MemoryChallengeStore) Put(ctx context.Context, ch core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[ch.Token] = ch
	return nil
}

// Get returns the challenge for a token.
func (s *MemoryChallengeStore) Get(ctx context.Context, token string) (core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[token]
	if !ok {
		return core.Challenge{}, core.ErrChallengeNotFound
	}
	return ch, nil
}

// Consume flips the consumed flag exactly once. The mutex makes the
// check-and-set atomic: of two concurrent callers exactly one succeeds.
func (s *MemoryChallengeStore) Consume(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[token]
	if !ok {
		return core.ErrChallengeNotFound
	}
	if ch.Consumed {
		return core.ErrChallengeAlreadyUsed
	}

	ch.Consumed = true
	s.challenges[token] = ch
	return nil
}

// Sweep drops expired challenges. Called periodically by the watcher loop.
func (s *MemoryChallengeStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, ch := range s.challenges {
		if ch.Expired(now) {
			delete(s.challenges, token)
		}
	}
}

func openKey(owner string, kind core.ActivationKind) string {
	return fmt.Sprintf("%s|%s", owner, kind)
}

// MemoryActivationStore is an in-memory ActivationStore. The mutex serializes
// transitions, which is what makes Transition a compare-and-swap.
type MemoryActivationStore struct {
	mu      sync.Mutex
	records map[string]core.ActivationRecord
	open    map[string]string // (owner, kind) -> record id
}

// NewMemoryActivationStore creates a new in-memory activation store.
func NewMemoryActivationStore() *MemoryActivationStore {
	return &MemoryActivationStore{
		records: make(map[string]core.ActivationRecord),
		open:    make(map[string]string),
	}
}

// Create stores a new record, enforcing the one-open-per-(owner, kind)
// invariant.
func (s *MemoryActivationStore) Create(ctx context.Context, rec core.ActivationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := openKey(rec.OwnerAddress, rec.Kind)
	if existingID, ok := s.open[key]; ok {
		if existing, found := s.records[existingID]; found && existing.Status.Open() {
			return core.ErrActivationAlreadyOpen
		}
		// Stale index entry from a terminal record; reclaim the slot.
	}

	s.records[rec.ID] = rec
	s.open[key] = rec.ID
	return nil
}

// Get returns a record by id.
func (s *MemoryActivationStore) Get(ctx context.Context, id string) (core.ActivationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return core.ActivationRecord{}, core.ErrActivationNotFound
	}
	return rec, nil
}

// ListOpen returns every record in a non-terminal status.
func (s *MemoryActivationStore) ListOpen(ctx context.Context) ([]core.ActivationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.ActivationRecord
	for _, rec := range s.records {
		if !rec.Status.Terminal() {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Transition performs the guarded compare-and-swap described on the port.
func (s *MemoryActivationStore) Transition(ctx context.Context, id string, from []core.ActivationStatus, mutate func(*core.ActivationRecord)) (core.ActivationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return core.ActivationRecord{}, core.ErrActivationNotFound
	}

	matched := false
	for _, f := range from {
		if rec.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return core.ActivationRecord{}, fmt.Errorf("%w: %s is %s", core.ErrInvalidState, id, rec.Status)
	}

	prev := rec.Status
	mutate(&rec)
	if rec.Status != prev && !core.CanTransition(prev, rec.Status) {
		return core.ActivationRecord{}, fmt.Errorf("%w: %s -> %s", core.ErrInvalidState, prev, rec.Status)
	}
	rec.UpdatedAt = time.Now().UTC()

	s.records[id] = rec
	if !rec.Status.Open() {
		key := openKey(rec.OwnerAddress, rec.Kind)
		if s.open[key] == id {
			delete(s.open, key)
		}
	}
	return rec, nil
}

// MemoryRateLimiter counts requests per key over a sliding window.
type MemoryRateLimiter struct {
	mu    sync.Mutex
	hits  map[string][]time.Time
	clock func() time.Time
}

// NewMemoryRateLimiter creates a new in-memory rate limiter.
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		hits:  make(map[string][]time.Time),
		clock: time.Now,
	}
}

// Allow admits up to limit requests per key within the window.
func (l *MemoryRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	cutoff := now.Add(-window)

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		l.hits[key] = kept
		return false, nil
	}

	l.hits[key] = append(kept, now)
	return true, nil
}

var (
	_ ports.ChallengeStore  = (*MemoryChallengeStore)(nil)
	_ ports.ActivationStore = (*MemoryActivationStore)(nil)
	_ ports.RateLimiter     = (*MemoryRateLimiter)(nil)
)
