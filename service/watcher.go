package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

// DefaultSweepInterval is the deposit polling cadence.
const DefaultSweepInterval = 5 * time.Second

// DefaultExecutionLease bounds how long a record may sit in executing with
// no outcome before the sweep reclaims it. It must comfortably exceed one
// full submit-and-confirm round trip.
const DefaultExecutionLease = 5 * time.Minute

// ChallengeSweeper is implemented by challenge stores that need an explicit
// expiry sweep (the in-memory one; Redis relies on key TTLs).
type ChallengeSweeper interface {
	Sweep(now time.Time)
}

// Watcher drives the deposit-gated lifecycle: it polls balances for every
// open record and calls the registry transition entry points. A ledger that
// pushes deposit notifications can call the same entry points instead; the
// state machine contract is identical.
type Watcher struct {
	registry *ActivationService
	ledger   ports.Ledger
	executor *Executor
	sweeper  ChallengeSweeper
	interval time.Duration
	lease    time.Duration
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithExecutionLease overrides how long an executing record is left alone
// before being reclaimed as stalled.
func WithExecutionLease(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.lease = d }
}

// NewWatcher creates a watcher over the registry. sweeper may be nil.
func NewWatcher(registry *ActivationService, ledger ports.Ledger, executor *Executor, sweeper ChallengeSweeper, interval time.Duration, opts ...WatcherOption) *Watcher {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	w := &Watcher{
		registry: registry,
		ledger:   ledger,
		executor: executor,
		sweeper:  sweeper,
		interval: interval,
		lease:    DefaultExecutionLease,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run sweeps at a fixed interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.interval).Msg("deposit watcher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("deposit watcher stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every open record. Records are independent; an
// error on one never blocks the rest.
func (w *Watcher) Sweep(ctx context.Context) {
	if w.sweeper != nil {
		w.sweeper.Sweep(time.Now())
	}

	records, err := w.registry.ListOpen(ctx)
	if err != nil {
		log.Error().Err(err).Msg("watcher: list open activations")
		return
	}

	for _, rec := range records {
		w.sweepRecord(ctx, rec)
	}
}

func (w *Watcher) sweepRecord(ctx context.Context, rec core.ActivationRecord) {
	switch rec.Status {
	case core.StatusAwaitingDeposit:
		w.pollDeposit(ctx, rec)

	case core.StatusFunded:
		w.executor.Trigger(rec.ID)

	case core.StatusRetryPending:
		if !time.Now().Before(rec.NextRetryAt) {
			w.executor.Trigger(rec.ID)
		}

	case core.StatusExecuting:
		// An attempt is normally in flight. A record that has sat here
		// past the lease belongs to a worker that died before reporting
		// an outcome; reclaim it so it is not stuck forever.
		staleBefore := time.Now().Add(-w.lease)
		if rec.UpdatedAt.After(staleBefore) {
			return
		}
		updated, err := w.registry.RecoverStalled(ctx, rec.ID, staleBefore)
		if err != nil {
			// A concurrent outcome report moved the record; fine.
			log.Debug().Err(err).Str("activation_id", rec.ID).Msg("watcher: recover stalled")
			return
		}
		if updated.Status == core.StatusRetryPending {
			w.executor.Trigger(rec.ID)
		}
	}
}

// pollDeposit checks funding first and expiry second, so a deposit landing
// in the same sweep as the deadline is still honored.
func (w *Watcher) pollDeposit(ctx context.Context, rec core.ActivationRecord) {
	balance, err := w.ledger.GetBalance(ctx, rec.DepositAddress)
	if err != nil {
		// A failed query is not a zero balance: leave the record
		// untouched and retry next sweep.
		log.Warn().Err(err).
			Str("activation_id", rec.ID).
			Str("deposit_address", rec.DepositAddress).
			Msg("watcher: balance query failed")
		return
	}

	updated, err := w.registry.MarkFunded(ctx, rec.ID, balance)
	if err != nil {
		log.Error().Err(err).Str("activation_id", rec.ID).Msg("watcher: mark funded")
		return
	}

	if updated.Status == core.StatusFunded {
		w.executor.Trigger(rec.ID)
		return
	}

	if updated.Status == core.StatusAwaitingDeposit && updated.DeadlinePassed(time.Now()) {
		if err := w.registry.MarkExpired(ctx, rec.ID); err != nil {
			log.Error().Err(err).Str("activation_id", rec.ID).Msg("watcher: mark expired")
		}
	}
}
