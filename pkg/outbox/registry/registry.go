// Package registry decides where each outbox row is published and decodes its
// payload before the publisher hands it to Pub/Sub.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/mesa-backend/pkg/config"
	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/angelmondragon/mesa-backend/pkg/outbox"
	"github.com/angelmondragon/mesa-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryablef(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// payloadTypes lists the events the publisher knows how to ship.
var payloadTypes = map[enums.OutboxEventType]func() any{
	enums.EventOrderCreated:         func() any { return &payloads.OrderCreatedEvent{} },
	enums.EventOrderStatusChanged:   func() any { return &payloads.OrderStatusChangedEvent{} },
	enums.EventBookingCreated:       func() any { return &payloads.BookingCreatedEvent{} },
	enums.EventBookingStatusChanged: func() any { return &payloads.BookingStatusChangedEvent{} },
}

type EventRegistry struct {
	topics map[enums.OutboxAggregateType]string
}

// NewEventRegistry routes order events to the orders topic and booking events
// to the bookings topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[enums.OutboxAggregateType]string{
		enums.AggregateOrder:   cfg.OrdersTopic,
		enums.AggregateBooking: cfg.BookingsTopic,
	}
	var missing []error
	for aggregate, topic := range topics {
		if topic == "" {
			missing = append(missing, fmt.Errorf("%s topic is required", aggregate))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}
	return &EventRegistry{topics: topics}, nil
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	if _, ok := payloadTypes[eventType]; !ok {
		return EventDescriptor{}, false
	}
	aggregate := eventType.Aggregate()
	topic, ok := r.topics[aggregate]
	if !ok {
		return EventDescriptor{}, false
	}
	return EventDescriptor{EventType: eventType, AggregateType: aggregate, Topic: topic}, true
}

// Resolve validates the row and decodes its typed payload. Every failure is a
// NonRetryableError since the row itself is at fault.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.Descriptor(event.EventType)
	switch {
	case !ok:
		return nil, nonRetryablef("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryablef("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryablef("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryablef("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryablef("payload missing for %s", event.EventType)
	}

	payload := payloadTypes[event.EventType]()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, nonRetryablef("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
