package analytics

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/angelmondragon/mesa-backend/pkg/outbox"
	"github.com/angelmondragon/mesa-backend/pkg/outbox/payloads"
)

var occurred = time.Date(2026, 5, 1, 19, 30, 0, 0, time.UTC)

func message(t *testing.T, eventType enums.OutboxEventType, aggregateID uuid.UUID, data any) ([]byte, map[string]string) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	eventID := uuid.New()
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		EventType:  string(eventType),
		OccurredAt: occurred,
		Actor:      &outbox.ActorRef{Role: "customer"},
		Data:       raw,
	})
	require.NoError(t, err)
	return body, map[string]string{
		"event_id":       eventID.String(),
		"event_type":     string(eventType),
		"aggregate_type": string(eventType.Aggregate()),
		"aggregate_id":   aggregateID.String(),
		"created_at":     occurred.Format(time.RFC3339Nano),
	}
}

func TestDecodeEnvelope(t *testing.T) {
	orderID := uuid.New()
	body, attrs := message(t, enums.EventOrderCreated, orderID, payloads.OrderCreatedEvent{OrderID: orderID, Total: decimal.RequireFromString("12.50")})

	env, err := DecodeEnvelope(body, attrs)
	require.NoError(t, err)
	assert.Equal(t, attrs["event_id"], env.EventID.String())
	assert.Equal(t, enums.EventOrderCreated, env.EventType)
	assert.Equal(t, enums.AggregateOrder, env.AggregateType)
	assert.Equal(t, orderID.String(), env.AggregateID)
	assert.True(t, env.OccurredAt.Equal(occurred))
	require.NotNil(t, env.Actor)
	assert.Equal(t, "customer", env.Actor.Role)
}

func TestDecodeEnvelopeFallsBackToAttributes(t *testing.T) {
	eventID := uuid.New()
	body := []byte(`{"version":1,"data":{"booking_id":"` + uuid.NewString() + `"}}`)
	env, err := DecodeEnvelope(body, map[string]string{
		"event_id":   eventID.String(),
		"event_type": string(enums.EventBookingCreated),
		"created_at": occurred.Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	assert.Equal(t, eventID, env.EventID)
	assert.Equal(t, enums.AggregateBooking, env.AggregateType)
	assert.True(t, env.OccurredAt.Equal(occurred))
}

func TestDecodeEnvelopeRejections(t *testing.T) {
	orderID := uuid.New()
	body, attrs := message(t, enums.EventOrderCreated, orderID, payloads.OrderCreatedEvent{OrderID: orderID})

	cases := []struct {
		name  string
		body  []byte
		attrs map[string]string
		want  error
	}{
		{"not json", []byte("nope"), attrs, ErrInvalidEnvelope},
		{"unknown type", []byte(`{"event_id":"` + uuid.NewString() + `","event_type":"menu_changed","occurred_at":"2026-05-01T00:00:00Z","data":{}}`), nil, ErrUnsupportedEventType},
		{"bad event id", []byte(`{"event_id":"x","event_type":"order_created","occurred_at":"2026-05-01T00:00:00Z","data":{}}`), nil, ErrInvalidEnvelope},
		{"aggregate mismatch", body, map[string]string{"aggregate_type": string(enums.AggregateBooking)}, ErrInvalidEnvelope},
		{"no data", []byte(`{"event_id":"` + uuid.NewString() + `","event_type":"order_created","occurred_at":"2026-05-01T00:00:00Z","data":null}`), nil, ErrInvalidEnvelope},
		{"no timestamp", []byte(`{"event_id":"` + uuid.NewString() + `","event_type":"order_created","data":{}}`), nil, ErrInvalidEnvelope},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEnvelope(tc.body, tc.attrs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}
