package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/angelmondragon/mesa-backend/pkg/outbox"
)

var (
	// ErrInvalidEnvelope marks messages that can never be handled. They are
	// acked so Pub/Sub stops redelivering them.
	ErrInvalidEnvelope = errors.New("invalid analytics envelope")
	// ErrUnsupportedEventType marks well-formed events the warehouse has no table for.
	ErrUnsupportedEventType = errors.New("unsupported analytics event type")
)

// Envelope is one outbox event as seen by the analytics consumer.
type Envelope struct {
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	OccurredAt    time.Time
	Actor         *outbox.ActorRef
	Payload       json.RawMessage
}

// DecodeEnvelope rebuilds an Envelope from a published message body and its
// attributes. The body wins over attributes when both carry a value.
func DecodeEnvelope(data []byte, attrs map[string]string) (Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &stored); err != nil {
		return Envelope{}, fmt.Errorf("%w: decode payload: %v", ErrInvalidEnvelope, err)
	}

	rawID := strings.TrimSpace(stored.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(attrs["event_id"])
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil || eventID == uuid.Nil {
		return Envelope{}, fmt.Errorf("%w: event_id %q", ErrInvalidEnvelope, rawID)
	}

	rawType := strings.TrimSpace(stored.EventType)
	if rawType == "" {
		rawType = strings.TrimSpace(attrs["event_type"])
	}
	eventType := enums.OutboxEventType(rawType)
	if !eventType.IsValid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnsupportedEventType, rawType)
	}

	aggregateType := enums.OutboxAggregateType(strings.TrimSpace(attrs["aggregate_type"]))
	if aggregateType == "" {
		aggregateType = eventType.Aggregate()
	}
	if aggregateType != eventType.Aggregate() {
		return Envelope{}, fmt.Errorf("%w: aggregate_type %q does not match %s", ErrInvalidEnvelope, aggregateType, eventType)
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created := strings.TrimSpace(attrs["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}
	if occurredAt.IsZero() {
		return Envelope{}, fmt.Errorf("%w: occurred_at missing", ErrInvalidEnvelope)
	}

	if len(stored.Data) == 0 || string(stored.Data) == "null" {
		return Envelope{}, fmt.Errorf("%w: data missing", ErrInvalidEnvelope)
	}

	return Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   strings.TrimSpace(attrs["aggregate_id"]),
		OccurredAt:    occurredAt.UTC(),
		Actor:         stored.Actor,
		Payload:       stored.Data,
	}, nil
}
