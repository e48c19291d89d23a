package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

// Registry defaults.
const (
	DefaultActivationTTL = 30 * time.Minute
	DefaultRetryBackoff  = 30 * time.Second
)

// ActivationService is the activation registry: it owns every status
// transition of an ActivationRecord. All transitions are guarded
// compare-and-swaps in the store, so concurrent callers (watcher sweep,
// cancel requests, the executor) serialize without a global lock.
type ActivationService struct {
	store    ports.ActivationStore
	events   ports.EventPublisher
	deposits ports.DepositAllocator

	launchCost    decimal.Decimal
	activationTTL time.Duration
	retryBackoff  time.Duration
	maxAttempts   int
}

// RegistryOption customizes an ActivationService.
type RegistryOption func(*ActivationService)

// WithActivationTTL overrides the funding deadline.
func WithActivationTTL(ttl time.Duration) RegistryOption {
	return func(s *ActivationService) { s.activationTTL = ttl }
}

// WithRetryBackoff overrides the delay before a failed execution is retried.
func WithRetryBackoff(d time.Duration) RegistryOption {
	return func(s *ActivationService) { s.retryBackoff = d }
}

// WithMaxAttempts overrides the execution retry ceiling.
func WithMaxAttempts(n int) RegistryOption {
	return func(s *ActivationService) { s.maxAttempts = n }
}

// WithLaunchCost overrides the deposit required for a token launch.
func WithLaunchCost(cost decimal.Decimal) RegistryOption {
	return func(s *ActivationService) { s.launchCost = cost }
}

// NewActivationService creates a registry. Every record it opens gets its
// own deposit address from the allocator.
func NewActivationService(store ports.ActivationStore, events ports.EventPublisher, deposits ports.DepositAllocator, opts ...RegistryOption) *ActivationService {
	s := &ActivationService{
		store:         store,
		events:        events,
		deposits:      deposits,
		launchCost:    decimal.NewFromFloat(0.5),
		activationTTL: DefaultActivationTTL,
		retryBackoff:  DefaultRetryBackoff,
		maxAttempts:   core.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requiredAmount derives the funding threshold for a verified intent: the
// fixed launch cost for token launches, the signed budget for market making.
func (s *ActivationService) requiredAmount(kind core.ActivationKind, payload core.ActionPayload) (decimal.Decimal, error) {
	switch kind {
	case core.KindTokenLaunch:
		return s.launchCost, nil
	case core.KindMarketMaking:
		var params core.MarketMakingParams
		if err := json.Unmarshal(payload.Body, &params); err != nil {
			return decimal.Zero, fmt.Errorf("decode market-making params: %w", err)
		}
		if params.BudgetSOL.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, fmt.Errorf("market-making budget must be positive")
		}
		return params.BudgetSOL, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", core.ErrUnknownAction, kind)
	}
}

// Open accepts a verified intent and creates a pending record in
// awaiting_deposit. At most one record per (owner, kind) may be open.
func (s *ActivationService) Open(ctx context.Context, intent core.VerifiedIntent, kind core.ActivationKind, challengeToken string) (core.ActivationRecord, error) {
	required, err := s.requiredAmount(kind, intent.Payload)
	if err != nil {
		return core.ActivationRecord{}, err
	}

	depositAddress, err := s.deposits.AllocateDepositAddress(ctx)
	if err != nil {
		return core.ActivationRecord{}, fmt.Errorf("allocate deposit address: %w", err)
	}

	now := time.Now().UTC()
	rec := core.ActivationRecord{
		ID:             uuid.New().String(),
		OwnerAddress:   intent.Address,
		DepositAddress: depositAddress,
		Kind:           kind,
		Payload:        intent.Payload,
		RequiredAmount: required,
		ObservedAmount: decimal.Zero,
		Status:         core.StatusAwaitingDeposit,
		MaxAttempts:    s.maxAttempts,
		ChallengeToken: challengeToken,
		ExpiresAt:      now.Add(s.activationTTL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return core.ActivationRecord{}, err
	}

	s.publish(ctx, rec, "", rec.Status)
	log.Info().
		Str("activation_id", rec.ID).
		Str("owner", rec.OwnerAddress).
		Str("kind", string(kind)).
		Str("required", required.String()).
		Time("expires_at", rec.ExpiresAt).
		Msg("activation opened")
	return rec, nil
}

// Get returns a record by id.
func (s *ActivationService) Get(ctx context.Context, id string) (core.ActivationRecord, error) {
	return s.store.Get(ctx, id)
}

// ListOpen returns every non-terminal record.
func (s *ActivationService) ListOpen(ctx context.Context) ([]core.ActivationRecord, error) {
	return s.store.ListOpen(ctx)
}

// Cancel aborts an activation. Permitted only while awaiting the deposit:
// once funds are observed the system favors completing or refunding.
func (s *ActivationService) Cancel(ctx context.Context, id, ownerAddress string) error {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.OwnerAddress != ownerAddress {
		return core.ErrNotOwner
	}

	updated, err := s.transition(ctx, id,
		[]core.ActivationStatus{core.StatusAwaitingDeposit},
		func(r *core.ActivationRecord) {
			r.Status = core.StatusCancelled
		})
	if err != nil {
		return err
	}

	log.Info().Str("activation_id", updated.ID).Msg("activation cancelled")
	return nil
}

// MarkFunded records the observed balance and, when it meets the threshold,
// moves awaiting_deposit to funded_pending_execution. Re-calling on an
// already-transitioned record is a no-op.
func (s *ActivationService) MarkFunded(ctx context.Context, id string, observed decimal.Decimal) (core.ActivationRecord, error) {
	updated, err := s.transition(ctx, id,
		[]core.ActivationStatus{core.StatusAwaitingDeposit},
		func(r *core.ActivationRecord) {
			r.ObservedAmount = observed
			if r.Funded() {
				r.Status = core.StatusFunded
			}
		})
	if err != nil {
		if errors.Is(err, core.ErrInvalidState) {
			// Already past awaiting_deposit; idempotent.
			return s.store.Get(ctx, id)
		}
		return core.ActivationRecord{}, err
	}

	if updated.Status == core.StatusFunded {
		log.Info().
			Str("activation_id", id).
			Str("observed", observed.String()).
			Str("required", updated.RequiredAmount.String()).
			Msg("activation funded")
	}
	return updated, nil
}

// MarkExpired moves awaiting_deposit to expired once the deadline passed.
// Records that already left awaiting_deposit are never expired.
func (s *ActivationService) MarkExpired(ctx context.Context, id string) error {
	now := time.Now()
	_, err := s.transition(ctx, id,
		[]core.ActivationStatus{core.StatusAwaitingDeposit},
		func(r *core.ActivationRecord) {
			if r.DeadlinePassed(now) {
				r.Status = core.StatusExpired
			}
		})
	if err != nil {
		if errors.Is(err, core.ErrInvalidState) {
			return nil
		}
		return err
	}
	return nil
}

// BeginExecution atomically claims the record for execution, incrementing
// the attempt counter. Exactly one concurrent caller can win the CAS; losers
// see ErrNotFundedYet or ErrInvalidState depending on where the record is.
func (s *ActivationService) BeginExecution(ctx context.Context, id string) (core.ActivationRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return core.ActivationRecord{}, err
	}
	if !rec.AttemptsLeft() {
		return core.ActivationRecord{}, core.ErrMaxAttemptsExceeded
	}

	updated, err := s.transition(ctx, id,
		[]core.ActivationStatus{core.StatusFunded, core.StatusRetryPending},
		func(r *core.ActivationRecord) {
			r.Attempts++
			r.Status = core.StatusExecuting
		})
	if err != nil {
		if errors.Is(err, core.ErrInvalidState) {
			if cur, gerr := s.store.Get(ctx, id); gerr == nil && cur.Status == core.StatusAwaitingDeposit {
				return core.ActivationRecord{}, core.ErrNotFundedYet
			}
		}
		return core.ActivationRecord{}, err
	}
	return updated, nil
}

// Outcome reports an execution attempt's result to the registry.
type Outcome struct {
	Ref   string // durable artifact on success, candidate on ambiguity
	TxSig string // submitted ledger transaction, if any
	Err   error
}

// RecordOutcome moves executing to completed, retry_pending, or failed. The
// retry-or-fail decision runs inside the CAS so the attempt counter it reads
// cannot be stale.
func (s *ActivationService) RecordOutcome(ctx context.Context, id string, outcome Outcome) (core.ActivationRecord, error) {
	updated, err := s.transition(ctx, id,
		[]core.ActivationStatus{core.StatusExecuting},
		func(r *core.ActivationRecord) {
			if outcome.Err == nil {
				r.Status = core.StatusCompleted
				r.ResultRef = outcome.Ref
				r.LastError = ""
				r.LastTxSig = ""
				r.PendingRef = ""
				return
			}

			r.LastError = outcome.Err.Error()
			r.LastTxSig = outcome.TxSig
			if outcome.TxSig != "" {
				r.PendingRef = outcome.Ref
			}
			if r.AttemptsLeft() {
				r.Status = core.StatusRetryPending
				r.NextRetryAt = time.Now().UTC().Add(s.retryBackoff)
			} else {
				r.Status = core.StatusFailed
			}
		})
	if err != nil {
		return core.ActivationRecord{}, err
	}

	evt := log.Info()
	if outcome.Err != nil {
		evt = log.Warn().Err(outcome.Err)
	}
	evt.Str("activation_id", id).
		Str("status", string(updated.Status)).
		Int("attempts", updated.Attempts).
		Msg("execution outcome recorded")
	return updated, nil
}

// Refund marks a dead activation as refunded once the fund-return
// transaction has been handled out of band.
func (s *ActivationService) Refund(ctx context.Context, id string) error {
	_, err := s.transition(ctx, id,
		[]core.ActivationStatus{core.StatusRetryPending, core.StatusFailed},
		func(r *core.ActivationRecord) {
			r.Status = core.StatusRefunded
		})
	return err
}

// RecoverStalled re-queues a record stuck in executing: a worker that
// crashed between claiming the record and reporting its outcome leaves it
// there forever. Only records last touched before staleBefore move; a live
// attempt keeps its claim. The stalled attempt stays counted, and any
// transaction it broadcast is settled through the usual prior-tx check
// before the retry submits anything.
func (s *ActivationService) RecoverStalled(ctx context.Context, id string, staleBefore time.Time) (core.ActivationRecord, error) {
	return s.transition(ctx, id,
		[]core.ActivationStatus{core.StatusExecuting},
		func(r *core.ActivationRecord) {
			if r.UpdatedAt.After(staleBefore) {
				return
			}
			r.LastError = "execution attempt stalled"
			if r.AttemptsLeft() {
				r.Status = core.StatusRetryPending
				r.NextRetryAt = time.Now().UTC()
			} else {
				r.Status = core.StatusFailed
			}
		})
}

// transition wraps the store CAS and publishes the resulting event when the
// status actually changed.
func (s *ActivationService) transition(ctx context.Context, id string, from []core.ActivationStatus, mutate func(*core.ActivationRecord)) (core.ActivationRecord, error) {
	var prev core.ActivationStatus
	updated, err := s.store.Transition(ctx, id, from, func(r *core.ActivationRecord) {
		prev = r.Status
		mutate(r)
	})
	if err != nil {
		return core.ActivationRecord{}, err
	}
	if updated.Status != prev {
		s.publish(ctx, updated, prev, updated.Status)
	}
	return updated, nil
}

func (s *ActivationService) publish(ctx context.Context, rec core.ActivationRecord, from, to core.ActivationStatus) {
	err := s.events.PublishActivation(ctx, core.ActivationEvent{
		ActivationID: rec.ID,
		OwnerAddress: rec.OwnerAddress,
		Kind:         rec.Kind,
		From:         from,
		To:           to,
		ResultRef:    rec.ResultRef,
		LastError:    rec.LastError,
		At:           time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("activation_id", rec.ID).Msg("failed to publish activation event")
	}
}
