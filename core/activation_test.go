package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to ActivationStatus }{
		{StatusAwaitingDeposit, StatusFunded},
		{StatusAwaitingDeposit, StatusExpired},
		{StatusAwaitingDeposit, StatusCancelled},
		{StatusFunded, StatusExecuting},
		{StatusExecuting, StatusCompleted},
		{StatusExecuting, StatusRetryPending},
		{StatusExecuting, StatusFailed},
		{StatusRetryPending, StatusExecuting},
		{StatusRetryPending, StatusRefunded},
		{StatusFailed, StatusRefunded},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to ActivationStatus }{
		{StatusAwaitingDeposit, StatusExecuting},
		{StatusAwaitingDeposit, StatusCompleted},
		{StatusFunded, StatusCompleted},
		{StatusFunded, StatusCancelled},
		{StatusExecuting, StatusFunded},
		{StatusCompleted, StatusExecuting},
		{StatusExpired, StatusFunded},
		{StatusCancelled, StatusAwaitingDeposit},
		{StatusRefunded, StatusRetryPending},
		{StatusFailed, StatusExecuting},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestStatusTerminalAndOpen(t *testing.T) {
	for _, s := range []ActivationStatus{StatusCompleted, StatusExpired, StatusCancelled, StatusRefunded} {
		assert.True(t, s.Terminal(), "%s", s)
		assert.False(t, s.Open(), "%s", s)
	}
	for _, s := range []ActivationStatus{StatusAwaitingDeposit, StatusFunded, StatusExecuting, StatusRetryPending} {
		assert.False(t, s.Terminal(), "%s", s)
		assert.True(t, s.Open(), "%s", s)
	}

	// failed is neither: the slot is released but a refund may follow.
	assert.False(t, StatusFailed.Terminal())
	assert.False(t, StatusFailed.Open())
}

func TestRecordFunded(t *testing.T) {
	rec := ActivationRecord{RequiredAmount: decimal.RequireFromString("0.10")}

	rec.ObservedAmount = decimal.RequireFromString("0.05")
	assert.False(t, rec.Funded())

	// Partial deposits accumulate; the threshold check is on the total.
	rec.ObservedAmount = decimal.RequireFromString("0.12")
	assert.True(t, rec.Funded())

	rec.ObservedAmount = decimal.RequireFromString("0.10")
	assert.True(t, rec.Funded())
}

func TestRecordDeadlinePassed(t *testing.T) {
	now := time.Now()
	rec := ActivationRecord{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, rec.DeadlinePassed(now))
	assert.False(t, rec.DeadlinePassed(rec.ExpiresAt))
	assert.True(t, rec.DeadlinePassed(now.Add(2*time.Minute)))
}

func TestRecordAttemptsLeft(t *testing.T) {
	rec := ActivationRecord{MaxAttempts: 3}

	for i := 0; i < 3; i++ {
		rec.Attempts = i
		assert.True(t, rec.AttemptsLeft(), "attempt %d", i)
	}
	rec.Attempts = 3
	assert.False(t, rec.AttemptsLeft())

	// Zero MaxAttempts falls back to the default cap.
	rec = ActivationRecord{Attempts: DefaultMaxAttempts}
	assert.False(t, rec.AttemptsLeft())
}
