package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-fi/flywheel/core"
)

func newChallenge(t *testing.T, address string) core.Challenge {
	t.Helper()
	ch, err := core.NewChallenge(address, core.ActionPayload{Kind: core.ActionAuthenticate}, time.Minute)
	require.NoError(t, err)
	return ch
}

func TestMemoryChallengeStorePutGet(t *testing.T) {
	s := NewMemoryChallengeStore()
	ctx := context.Background()

	ch := newChallenge(t, "wallet-1")
	require.NoError(t, s.Put(ctx, ch))

	got, err := s.Get(ctx, ch.Token)
	require.NoError(t, err)
	assert.Equal(t, ch, got)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestMemoryChallengeStoreConsumeOnce(t *testing.T) {
	s := NewMemoryChallengeStore()
	ctx := context.Background()

	ch := newChallenge(t, "wallet-1")
	require.NoError(t, s.Put(ctx, ch))

	require.NoError(t, s.Consume(ctx, ch.Token))
	assert.ErrorIs(t, s.Consume(ctx, ch.Token), core.ErrChallengeAlreadyUsed)
	assert.ErrorIs(t, s.Consume(ctx, "missing"), core.ErrChallengeNotFound)

	got, err := s.Get(ctx, ch.Token)
	require.NoError(t, err)
	assert.True(t, got.Consumed)
}

func TestMemoryChallengeStoreConsumeConcurrent(t *testing.T) {
	s := NewMemoryChallengeStore()
	ctx := context.Background()

	ch := newChallenge(t, "wallet-1")
	require.NoError(t, s.Put(ctx, ch))

	const goroutines = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if err := s.Consume(ctx, ch.Token); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestMemoryChallengeStoreSweep(t *testing.T) {
	s := NewMemoryChallengeStore()
	ctx := context.Background()

	fresh := newChallenge(t, "wallet-1")
	stale, err := core.NewChallenge("wallet-2", core.ActionPayload{Kind: core.ActionAuthenticate}, -time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, fresh))
	require.NoError(t, s.Put(ctx, stale))

	s.Sweep(time.Now())

	_, err = s.Get(ctx, fresh.Token)
	assert.NoError(t, err)
	_, err = s.Get(ctx, stale.Token)
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func newRecord(id, owner string, kind core.ActivationKind, status core.ActivationStatus) core.ActivationRecord {
	return core.ActivationRecord{
		ID:             id,
		OwnerAddress:   owner,
		DepositAddress: "deposit-1",
		Kind:           kind,
		RequiredAmount: decimal.RequireFromString("0.5"),
		ObservedAmount: decimal.Zero,
		Status:         status,
		MaxAttempts:    3,
		ExpiresAt:      time.Now().Add(30 * time.Minute),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

func TestMemoryActivationStoreCreateEnforcesSingleOpen(t *testing.T) {
	s := NewMemoryActivationStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newRecord("a-1", "wallet-1", core.KindTokenLaunch, core.StatusAwaitingDeposit)))

	// Same owner and kind while the first is open.
	err := s.Create(ctx, newRecord("a-2", "wallet-1", core.KindTokenLaunch, core.StatusAwaitingDeposit))
	assert.ErrorIs(t, err, core.ErrActivationAlreadyOpen)

	// A different kind or a different owner does not collide.
	require.NoError(t, s.Create(ctx, newRecord("a-3", "wallet-1", core.KindMarketMaking, core.StatusAwaitingDeposit)))
	require.NoError(t, s.Create(ctx, newRecord("a-4", "wallet-2", core.KindTokenLaunch, core.StatusAwaitingDeposit)))
}

func TestMemoryActivationStoreSlotFreedOnTerminal(t *testing.T) {
	s := NewMemoryActivationStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newRecord("a-1", "wallet-1", core.KindTokenLaunch, core.StatusAwaitingDeposit)))

	_, err := s.Transition(ctx, "a-1",
		[]core.ActivationStatus{core.StatusAwaitingDeposit},
		func(r *core.ActivationRecord) { r.Status = core.StatusCancelled })
	require.NoError(t, err)

	// The slot is free again.
	require.NoError(t, s.Create(ctx, newRecord("a-2", "wallet-1", core.KindTokenLaunch, core.StatusAwaitingDeposit)))
}

func TestMemoryActivationStoreTransitionGuards(t *testing.T) {
	s := NewMemoryActivationStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newRecord("a-1", "wallet-1", core.KindTokenLaunch, core.StatusAwaitingDeposit)))

	// From-set mismatch.
	_, err := s.Transition(ctx, "a-1",
		[]core.ActivationStatus{core.StatusFunded},
		func(r *core.ActivationRecord) { r.Status = core.StatusExecuting })
	assert.ErrorIs(t, err, core.ErrInvalidState)

	// Illegal edge even when the from-set matches.
	_, err = s.Transition(ctx, "a-1",
		[]core.ActivationStatus{core.StatusAwaitingDeposit},
		func(r *core.ActivationRecord) { r.Status = core.StatusCompleted })
	assert.ErrorIs(t, err, core.ErrInvalidState)

	// The illegal mutation must not have been persisted.
	rec, err := s.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusAwaitingDeposit, rec.Status)

	_, err = s.Transition(ctx, "missing",
		[]core.ActivationStatus{core.StatusAwaitingDeposit},
		func(r *core.ActivationRecord) {})
	assert.ErrorIs(t, err, core.ErrActivationNotFound)
}

func TestMemoryActivationStoreTransitionConcurrent(t *testing.T) {
	s := NewMemoryActivationStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newRecord("a-1", "wallet-1", core.KindTokenLaunch, core.StatusFunded)))

	const goroutines = 16
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Transition(ctx, "a-1",
				[]core.ActivationStatus{core.StatusFunded},
				func(r *core.ActivationRecord) {
					r.Attempts++
					r.Status = core.StatusExecuting
				})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)

	rec, err := s.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusExecuting, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
}

func TestMemoryActivationStoreListOpen(t *testing.T) {
	s := NewMemoryActivationStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newRecord("a-1", "wallet-1", core.KindTokenLaunch, core.StatusAwaitingDeposit)))
	require.NoError(t, s.Create(ctx, newRecord("a-2", "wallet-2", core.KindTokenLaunch, core.StatusAwaitingDeposit)))

	_, err := s.Transition(ctx, "a-2",
		[]core.ActivationStatus{core.StatusAwaitingDeposit},
		func(r *core.ActivationRecord) { r.Status = core.StatusExpired })
	require.NoError(t, err)

	open, err := s.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a-1", open[0].ID)
}

func TestMemoryRateLimiter(t *testing.T) {
	l := NewMemoryRateLimiter()
	ctx := context.Background()

	now := time.Now()
	l.clock = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "wallet-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}

	ok, err := l.Allow(ctx, "wallet-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Another key has its own budget.
	ok, err = l.Allow(ctx, "wallet-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// The window slides.
	now = now.Add(2 * time.Minute)
	ok, err = l.Allow(ctx, "wallet-1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
