package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

// Executor performs the one-time expensive side effect for funded records.
// BeginExecution's CAS guarantees at most one active attempt per record, so
// the executor itself needs no per-record locking.
type Executor struct {
	registry *ActivationService
	launcher ports.Launcher
	ledger   ports.Ledger
	queue    chan string
}

// NewExecutor creates an executor with a bounded work queue. A full queue
// drops triggers; the watcher re-arms them on the next sweep.
func NewExecutor(registry *ActivationService, launcher ports.Launcher, ledger ports.Ledger) *Executor {
	return &Executor{
		registry: registry,
		launcher: launcher,
		ledger:   ledger,
		queue:    make(chan string, 64),
	}
}

// Trigger enqueues a record for execution without blocking the caller.
func (e *Executor) Trigger(id string) {
	select {
	case e.queue <- id:
	default:
		log.Warn().Str("activation_id", id).Msg("executor queue full, deferring to next sweep")
	}
}

// Run consumes the queue until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) {
	log.Info().Msg("executor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("executor stopped")
			return
		case id := <-e.queue:
			e.Execute(ctx, id)
		}
	}
}

// Execute claims the record and performs its side effect once. Losing the
// claim (another worker won, record not funded, retries exhausted) is
// normal under concurrent triggers and only logged.
func (e *Executor) Execute(ctx context.Context, id string) {
	rec, err := e.registry.BeginExecution(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNotFundedYet),
			errors.Is(err, core.ErrInvalidState),
			errors.Is(err, core.ErrMaxAttemptsExceeded):
			log.Debug().Err(err).Str("activation_id", id).Msg("execution claim not taken")
		default:
			log.Error().Err(err).Str("activation_id", id).Msg("begin execution")
		}
		return
	}

	// An earlier attempt may have broadcast a transaction whose outcome we
	// never learned. Check it before doing anything that could double-submit.
	if rec.LastTxSig != "" {
		if done := e.settlePriorTx(ctx, rec); done {
			return
		}
	}

	outcome := e.perform(ctx, rec)
	if _, err := e.registry.RecordOutcome(ctx, id, outcome); err != nil {
		log.Error().Err(err).Str("activation_id", id).Msg("record outcome")
	}
}

// settlePriorTx resolves an ambiguous earlier submission. Returns true when
// this attempt is fully settled by the prior transaction.
func (e *Executor) settlePriorTx(ctx context.Context, rec core.ActivationRecord) bool {
	status, err := e.ledger.GetTransactionStatus(ctx, rec.LastTxSig)
	if err != nil {
		// Can't tell; do not resubmit. Burn this attempt and retry later.
		_, rerr := e.registry.RecordOutcome(ctx, rec.ID, Outcome{
			Ref:   rec.PendingRef,
			TxSig: rec.LastTxSig,
			Err:   fmt.Errorf("prior transaction status unavailable: %w", err),
		})
		if rerr != nil {
			log.Error().Err(rerr).Str("activation_id", rec.ID).Msg("record outcome")
		}
		return true
	}

	switch status {
	case ports.TxStatusConfirmed:
		// The effect already happened; report success, never resubmit.
		_, err := e.registry.RecordOutcome(ctx, rec.ID, Outcome{Ref: rec.PendingRef})
		if err != nil {
			log.Error().Err(err).Str("activation_id", rec.ID).Msg("record outcome")
		}
		log.Info().
			Str("activation_id", rec.ID).
			Str("tx_sig", rec.LastTxSig).
			Msg("prior transaction confirmed, not resubmitting")
		return true

	case ports.TxStatusUnknown:
		// Still in limbo; resubmitting now risks a double effect.
		_, err := e.registry.RecordOutcome(ctx, rec.ID, Outcome{
			Ref:   rec.PendingRef,
			TxSig: rec.LastTxSig,
			Err:   errors.New("prior transaction still unconfirmed"),
		})
		if err != nil {
			log.Error().Err(err).Str("activation_id", rec.ID).Msg("record outcome")
		}
		return true

	default:
		// Definitely failed on-chain: safe to submit fresh.
		return false
	}
}

func (e *Executor) perform(ctx context.Context, rec core.ActivationRecord) Outcome {
	var (
		result ports.LaunchResult
		err    error
	)

	switch rec.Kind {
	case core.KindTokenLaunch:
		result, err = e.launcher.LaunchToken(ctx, rec)
	case core.KindMarketMaking:
		result, err = e.launcher.StartMarketMaking(ctx, rec)
	default:
		err = fmt.Errorf("%w: %s", core.ErrUnknownAction, rec.Kind)
	}

	return Outcome{Ref: result.Ref, TxSig: result.TxSig, Err: err}
}
