package launch

import (
	"context"
	"sync"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

// StubOutcome scripts one launcher invocation in tests.
type StubOutcome struct {
	Result ports.LaunchResult
	Err    error
}

// StubLauncher replays scripted outcomes in order, then repeats the last
// one. It records every record it was invoked with.
type StubLauncher struct {
	mu       sync.Mutex
	outcomes []StubOutcome
	next     int
	Invoked  []core.ActivationRecord
}

// NewStubLauncher creates a stub launcher with the given script.
func NewStubLauncher(outcomes ...StubOutcome) *StubLauncher {
	return &StubLauncher{outcomes: outcomes}
}

func (s *StubLauncher) take(rec core.ActivationRecord) (ports.LaunchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Invoked = append(s.Invoked, rec)
	if len(s.outcomes) == 0 {
		return ports.LaunchResult{Ref: "stub-ref"}, nil
	}
	out := s.outcomes[s.next]
	if s.next < len(s.outcomes)-1 {
		s.next++
	}
	return out.Result, out.Err
}

// LaunchToken replays the next scripted outcome.
func (s *StubLauncher) LaunchToken(ctx context.Context, rec core.ActivationRecord) (ports.LaunchResult, error) {
	return s.take(rec)
}

// StartMarketMaking replays the next scripted outcome.
func (s *StubLauncher) StartMarketMaking(ctx context.Context, rec core.ActivationRecord) (ports.LaunchResult, error) {
	return s.take(rec)
}

var _ ports.Launcher = (*StubLauncher)(nil)
