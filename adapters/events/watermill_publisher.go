package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
)

const (
	// AuthTopic carries verified-intent events.
	AuthTopic = "flywheel.auth"

	// ActivationTopic carries activation status transitions.
	ActivationTopic = "flywheel.activation"
)

// WatermillPublisher implements EventPublisher over a Watermill publisher.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill-backed publisher.
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishAuth publishes a verified-intent event.
func (p *WatermillPublisher) PublishAuth(ctx context.Context, event core.AuthEvent) error {
	return p.publish(AuthTopic, uuid.New().String(), event)
}

// PublishActivation publishes an activation transition event, keyed by the
// activation id so consumers can order per-record.
func (p *WatermillPublisher) PublishActivation(ctx context.Context, event core.ActivationEvent) error {
	return p.publish(ActivationTopic, event.ActivationID, event)
}

func (p *WatermillPublisher) publish(topic, key string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(key, payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// NopPublisher drops all events. Used in tests and when no broker is
// configured.
type NopPublisher struct{}

// PublishAuth drops the event.
func (NopPublisher) PublishAuth(ctx context.Context, event core.AuthEvent) error { return nil }

// PublishActivation drops the event.
func (NopPublisher) PublishActivation(ctx context.Context, event core.ActivationEvent) error {
	return nil
}

var (
	_ ports.EventPublisher = (*WatermillPublisher)(nil)
	_ ports.EventPublisher = NopPublisher{}
)
