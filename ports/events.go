package ports

import (
	"context"

	"github.com/flywheel-fi/flywheel/core"
)

// EventPublisher notifies downstream consumers (notification delivery, other
// instances) about auth and activation lifecycle events.
type EventPublisher interface {
	PublishAuth(ctx context.Context, event core.AuthEvent) error
	PublishActivation(ctx context.Context, event core.ActivationEvent) error
}
